// Package engine is the seam to the external browser-automation engine.
// The pool and session layers only see these interfaces; the Playwright
// adapter in this package is the one production implementation.
package engine

import (
	"context"
	"fmt"
)

// Type identifies a browser engine. The set is closed; ParseType rejects
// anything else.
type Type string

const (
	TypeChromium Type = "chromium"
	TypeFirefox  Type = "firefox"
	TypeWebKit   Type = "webkit"
)

// Types returns the supported engine types in a stable order.
func Types() []Type {
	return []Type{TypeChromium, TypeFirefox, TypeWebKit}
}

// ParseType validates an engine-type name from the wire.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeChromium, TypeFirefox, TypeWebKit:
		return Type(s), nil
	}
	return "", fmt.Errorf("unsupported engine type %q (expected chromium, firefox, or webkit)", s)
}

// Default values for page creation and operations
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LaunchOptions configures a new browser process.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool
}

// PageOptions configures the isolated context and page handed out for one
// allocation.
type PageOptions struct {
	// Viewport sets the initial viewport size
	Viewport *Viewport

	// UserAgent overrides the engine's default user agent when non-empty
	UserAgent string

	// Timeout sets the default timeout for page operations (in milliseconds)
	Timeout float64
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	// Button specifies which mouse button to use (left, right, middle)
	Button string

	// ClickCount is the number of times to click (1 for single, 2 for double)
	ClickCount int

	// Timeout in milliseconds
	Timeout float64
}

// FillOptions configures form input filling.
type FillOptions struct {
	// Timeout in milliseconds
	Timeout float64
}

// HoverOptions configures element hovering.
type HoverOptions struct {
	// Timeout in milliseconds
	Timeout float64
}

// SelectOptions configures option selection on <select> elements.
type SelectOptions struct {
	// Timeout in milliseconds
	Timeout float64
}

// ScreenshotOptions configures screenshot capture.
type ScreenshotOptions struct {
	// FullPage captures the full scrollable page instead of the viewport
	FullPage bool
}

// Page is one isolated page inside a browser process. Closing it tears
// down the page and its context but leaves the process running.
type Page interface {
	Goto(url string, opts NavigateOptions) (status int, err error)
	Title() (string, error)
	URL() string
	Content() (string, error)
	Screenshot(opts ScreenshotOptions) ([]byte, error)
	Click(selector string, opts ClickOptions) error
	Fill(selector, value string, opts FillOptions) error
	Hover(selector string, opts HoverOptions) error
	SelectOption(selector string, values []string, opts SelectOptions) ([]string, error)
	Evaluate(expression string) (interface{}, error)
	Close() error
}

// Browser is a handle to one launched engine process.
type Browser interface {
	// NewPage creates a fresh isolated context and page.
	NewPage(opts PageOptions) (Page, error)

	// Connected reports whether the underlying process is still reachable.
	Connected() bool

	// Close terminates the process.
	Close() error
}

// Engine launches browser processes. Launch blocks while the external
// process starts, so it takes a context for early abort.
type Engine interface {
	Launch(ctx context.Context, engineType Type, opts LaunchOptions) (Browser, error)
	Shutdown() error
}
