package session

import (
	"fmt"
	"net/url"
	"time"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// Limits for content extraction requests.
const (
	DefaultMaxLength = 10000
	MinMaxLength     = 100
	MaxMaxLength     = 100000
)

// LaunchArgs are the arguments for browser_launch.
type LaunchArgs struct {
	// EngineType selects the browser engine (chromium, firefox, webkit).
	// Empty means the configured default.
	EngineType string `json:"engineType,omitempty"`

	// Headless overrides the configured default mode when set.
	Headless *bool `json:"headless,omitempty"`

	// UserAgent overrides the engine's default user agent string.
	UserAgent string `json:"userAgent,omitempty"`

	// Viewport sets the initial viewport size.
	Viewport *engine.Viewport `json:"viewport,omitempty"`

	// TeamID identifies the tenant launching the session.
	TeamID string `json:"teamId,omitempty"`
}

// Validate checks launch arguments before any pool work happens.
func (a *LaunchArgs) Validate() error {
	if a.EngineType != "" {
		if _, err := engine.ParseType(a.EngineType); err != nil {
			return protocol.NewInvalidInput(err.Error())
		}
	}
	if a.Viewport != nil {
		if a.Viewport.Width <= 0 || a.Viewport.Height <= 0 {
			return protocol.NewInvalidInput("viewport dimensions must be positive")
		}
	}
	return nil
}

// TargetArgs is the common shape of every session-scoped call.
type TargetArgs struct {
	BrowserID string `json:"browserId"`
	TeamID    string `json:"teamId,omitempty"`
}

// Validate checks that the call names a session.
func (a *TargetArgs) Validate() error {
	if a.BrowserID == "" {
		return protocol.NewInvalidInput("browserId is required")
	}
	return nil
}

// NavigateArgs are the arguments for browser_navigate.
type NavigateArgs struct {
	TargetArgs

	// URL is the destination address. Required.
	URL string `json:"url"`

	// WaitUntil specifies when to consider navigation successful.
	// Valid values: "load", "domcontentloaded", "networkidle", "commit".
	WaitUntil string `json:"waitUntil,omitempty"`

	// Timeout in milliseconds (0 means the engine default).
	Timeout float64 `json:"timeout,omitempty"`
}

var validWaitUntil = map[string]bool{
	"load":             true,
	"domcontentloaded": true,
	"networkidle":      true,
	"commit":           true,
}

// Validate checks navigation arguments.
func (a *NavigateArgs) Validate() error {
	if err := a.TargetArgs.Validate(); err != nil {
		return err
	}
	if a.URL == "" {
		return protocol.NewInvalidInput("url is required")
	}
	parsed, err := url.Parse(a.URL)
	if err != nil {
		return protocol.NewInvalidInput(fmt.Sprintf("invalid url %q: %v", a.URL, err))
	}
	if parsed.Scheme == "" {
		return protocol.NewInvalidInput(fmt.Sprintf("url %q has no scheme", a.URL))
	}
	if a.WaitUntil != "" && !validWaitUntil[a.WaitUntil] {
		return protocol.NewInvalidInput(fmt.Sprintf("invalid waitUntil %q (expected load, domcontentloaded, networkidle, or commit)", a.WaitUntil))
	}
	if a.Timeout < 0 {
		return protocol.NewInvalidInput("timeout must not be negative")
	}
	return nil
}

// ClickArgs are the arguments for browser_click.
type ClickArgs struct {
	TargetArgs

	// Selector identifies the element to click. Required.
	Selector string `json:"selector"`

	// Button specifies which mouse button to use (left, right, middle).
	Button string `json:"button,omitempty"`

	// ClickCount is the number of times to click (1 single, 2 double).
	ClickCount int `json:"clickCount,omitempty"`

	// Timeout in milliseconds.
	Timeout float64 `json:"timeout,omitempty"`
}

var validButtons = map[string]bool{
	"left":   true,
	"right":  true,
	"middle": true,
}

// Validate checks click arguments.
func (a *ClickArgs) Validate() error {
	if err := a.TargetArgs.Validate(); err != nil {
		return err
	}
	if a.Selector == "" {
		return protocol.NewInvalidInput("selector is required")
	}
	if a.Button != "" && !validButtons[a.Button] {
		return protocol.NewInvalidInput(fmt.Sprintf("invalid button %q (expected left, right, or middle)", a.Button))
	}
	if a.ClickCount < 0 {
		return protocol.NewInvalidInput("clickCount must not be negative")
	}
	if a.Timeout < 0 {
		return protocol.NewInvalidInput("timeout must not be negative")
	}
	return nil
}

// FillArgs are the arguments for browser_fill.
type FillArgs struct {
	TargetArgs

	// Selector identifies the input element. Required.
	Selector string `json:"selector"`

	// Value is the text to fill. An empty string clears the field.
	Value string `json:"value"`

	// Timeout in milliseconds.
	Timeout float64 `json:"timeout,omitempty"`
}

// Validate checks fill arguments.
func (a *FillArgs) Validate() error {
	if err := a.TargetArgs.Validate(); err != nil {
		return err
	}
	if a.Selector == "" {
		return protocol.NewInvalidInput("selector is required")
	}
	if a.Timeout < 0 {
		return protocol.NewInvalidInput("timeout must not be negative")
	}
	return nil
}

// HoverArgs are the arguments for browser_hover.
type HoverArgs struct {
	TargetArgs

	// Selector identifies the element to hover over. Required.
	Selector string `json:"selector"`

	// Timeout in milliseconds.
	Timeout float64 `json:"timeout,omitempty"`
}

// Validate checks hover arguments.
func (a *HoverArgs) Validate() error {
	if err := a.TargetArgs.Validate(); err != nil {
		return err
	}
	if a.Selector == "" {
		return protocol.NewInvalidInput("selector is required")
	}
	if a.Timeout < 0 {
		return protocol.NewInvalidInput("timeout must not be negative")
	}
	return nil
}

// SelectArgs are the arguments for browser_select_option.
type SelectArgs struct {
	TargetArgs

	// Selector identifies the select element. Required.
	Selector string `json:"selector"`

	// Values are the option values to select. At least one is required.
	Values []string `json:"values"`

	// Timeout in milliseconds.
	Timeout float64 `json:"timeout,omitempty"`
}

// Validate checks select arguments.
func (a *SelectArgs) Validate() error {
	if err := a.TargetArgs.Validate(); err != nil {
		return err
	}
	if a.Selector == "" {
		return protocol.NewInvalidInput("selector is required")
	}
	if len(a.Values) == 0 {
		return protocol.NewInvalidInput("values must contain at least one option")
	}
	if a.Timeout < 0 {
		return protocol.NewInvalidInput("timeout must not be negative")
	}
	return nil
}

// EvaluateArgs are the arguments for browser_evaluate.
type EvaluateArgs struct {
	TargetArgs

	// Expression is the JavaScript expression to evaluate. Required.
	Expression string `json:"expression"`
}

// Validate checks evaluate arguments.
func (a *EvaluateArgs) Validate() error {
	if err := a.TargetArgs.Validate(); err != nil {
		return err
	}
	if a.Expression == "" {
		return protocol.NewInvalidInput("expression is required")
	}
	return nil
}

// ScreenshotArgs are the arguments for browser_screenshot.
type ScreenshotArgs struct {
	TargetArgs

	// FullPage captures the full scrollable page instead of the viewport.
	FullPage bool `json:"fullPage,omitempty"`
}

// Validate checks screenshot arguments.
func (a *ScreenshotArgs) Validate() error {
	return a.TargetArgs.Validate()
}

// ExtractArgs are the arguments for browser_extract_content.
type ExtractArgs struct {
	TargetArgs

	// Format is the output format: "markdown" (default), "text", or "structured".
	Format string `json:"format,omitempty"`

	// Selector optionally limits extraction to the first matching element.
	// Supports tag, #id, and .class selectors.
	Selector string `json:"selector,omitempty"`

	// MaxLength limits the extracted content length in characters.
	MaxLength *int `json:"maxLength,omitempty"`
}

// Validate checks extraction arguments.
func (a *ExtractArgs) Validate() error {
	if err := a.TargetArgs.Validate(); err != nil {
		return err
	}
	if a.Format != "" {
		switch Format(a.Format) {
		case FormatMarkdown, FormatText, FormatStructured:
		default:
			return protocol.NewInvalidInput(fmt.Sprintf("invalid format %q (expected markdown, text, or structured)", a.Format))
		}
	}
	if a.MaxLength != nil && (*a.MaxLength < MinMaxLength || *a.MaxLength > MaxMaxLength) {
		return protocol.NewInvalidInput(fmt.Sprintf("maxLength must be between %d and %d", MinMaxLength, MaxMaxLength))
	}
	return nil
}

// CloseArgs are the arguments for browser_close.
type CloseArgs struct {
	TargetArgs
}

// Descriptor describes a launched browser session.
type Descriptor struct {
	BrowserID  string          `json:"browserId"`
	EngineType engine.Type     `json:"engineType"`
	Headless   bool            `json:"headless"`
	UserAgent  string          `json:"userAgent,omitempty"`
	Viewport   engine.Viewport `json:"viewport"`
}

// NavigateResult is the result of browser_navigate.
type NavigateResult struct {
	BrowserID string `json:"browserId"`
	URL       string `json:"url"`
	Status    int    `json:"status"`
	Title     string `json:"title,omitempty"`
}

// ClickResult is the result of browser_click.
type ClickResult struct {
	BrowserID  string `json:"browserId"`
	Selector   string `json:"selector"`
	CurrentURL string `json:"currentUrl"`
}

// FillResult is the result of browser_fill.
type FillResult struct {
	BrowserID string `json:"browserId"`
	Selector  string `json:"selector"`
}

// HoverResult is the result of browser_hover.
type HoverResult struct {
	BrowserID string `json:"browserId"`
	Selector  string `json:"selector"`
}

// SelectResult is the result of browser_select_option.
type SelectResult struct {
	BrowserID string   `json:"browserId"`
	Selector  string   `json:"selector"`
	Selected  []string `json:"selected"`
}

// EvaluateResult is the result of browser_evaluate.
type EvaluateResult struct {
	BrowserID string      `json:"browserId"`
	Result    interface{} `json:"result"`
}

// ScreenshotResult is the result of browser_screenshot. Data carries the
// PNG image as base64.
type ScreenshotResult struct {
	BrowserID string `json:"browserId"`
	Format    string `json:"format"`
	FullPage  bool   `json:"fullPage"`
	Data      string `json:"data"`
}

// ExtractResult is the result of browser_extract_content. Content is a
// string for markdown and text formats and a StructuredContent for the
// structured format.
type ExtractResult struct {
	BrowserID string      `json:"browserId"`
	URL       string      `json:"url"`
	Format    Format      `json:"format"`
	Content   interface{} `json:"content"`
	Truncated bool        `json:"truncated"`
}

// CloseResult is the result of browser_close.
type CloseResult struct {
	BrowserID string `json:"browserId"`
	Closed    bool   `json:"closed"`
}

// Info contains metadata about one active session.
type Info struct {
	BrowserID  string      `json:"browserId"`
	EngineType engine.Type `json:"engineType"`
	Headless   bool        `json:"headless"`
	TeamID     string      `json:"teamId,omitempty"`
	CurrentURL string      `json:"currentUrl"`
	CreatedAt  time.Time   `json:"createdAt"`
	LastUsedAt time.Time   `json:"lastUsedAt"`
}

// Status is the session manager's view of the server, returned by
// browser_status alongside the pool's capacity numbers.
type Status struct {
	ActiveSessions int    `json:"activeSessions"`
	MaxInstances   int    `json:"maxInstances"`
	Sessions       []Info `json:"sessions"`
}
