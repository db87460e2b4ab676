package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
)

// PlaywrightEngine drives browsers through the Playwright runtime. One
// runtime serves all engine types; Initialize must be called before Launch.
type PlaywrightEngine struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool
	logger      logging.Logger
}

// NewPlaywrightEngine creates the engine. Initialize starts the runtime.
func NewPlaywrightEngine(logger logging.Logger) *PlaywrightEngine {
	return &PlaywrightEngine{
		logger: logging.OrNop(logger),
	}
}

// Initialize installs (optionally) and starts the Playwright runtime.
// Driver output is discarded so it cannot interleave with the stdio
// transport's protocol stream.
func (e *PlaywrightEngine) Initialize(installBrowsers bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if installBrowsers {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	e.pw = pw
	e.initialized = true
	e.logger.Infof("playwright runtime started")
	return nil
}

// Launch starts a new browser process of the requested type.
func (e *PlaywrightEngine) Launch(ctx context.Context, engineType Type, opts LaunchOptions) (Browser, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return nil, fmt.Errorf("playwright engine not initialized")
	}
	pw := e.pw
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var browserType playwright.BrowserType
	switch engineType {
	case TypeChromium:
		browserType = pw.Chromium
	case TypeFirefox:
		browserType = pw.Firefox
	case TypeWebKit:
		browserType = pw.WebKit
	default:
		return nil, fmt.Errorf("unsupported engine type %q", engineType)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	}
	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	e.logger.Debugf("launched %s browser (headless=%v)", engineType, opts.Headless)
	return &playwrightBrowser{browser: browser}, nil
}

// Shutdown stops the Playwright runtime. Live browsers are closed by the
// pool before this is called.
func (e *PlaywrightEngine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized || e.pw == nil {
		return nil
	}
	if err := e.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	e.initialized = false
	return nil
}

type playwrightBrowser struct {
	browser playwright.Browser
}

func (b *playwrightBrowser) NewPage(opts PageOptions) (Page, error) {
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = &opts.UserAgent
	}

	browserContext, err := b.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserContext.NewPage()
	if err != nil {
		browserContext.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(opts.Timeout)

	return &playwrightPage{context: browserContext, page: page}, nil
}

func (b *playwrightBrowser) Connected() bool {
	return b.browser.IsConnected()
}

func (b *playwrightBrowser) Close() error {
	return b.browser.Close()
}

type playwrightPage struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func (p *playwrightPage) Goto(url string, opts NavigateOptions) (int, error) {
	playwrightOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	resp, err := p.page.Goto(url, playwrightOpts)
	if err != nil {
		return 0, fmt.Errorf("navigation failed: %w", err)
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Screenshot(opts ScreenshotOptions) ([]byte, error) {
	screenshotOpts := playwright.PageScreenshotOptions{}
	if opts.FullPage {
		screenshotOpts.FullPage = &opts.FullPage
	}
	data, err := p.page.Screenshot(screenshotOpts)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

func (p *playwrightPage) Click(selector string, opts ClickOptions) error {
	playwrightOpts := playwright.PageClickOptions{}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		playwrightOpts.Button = &button
	}
	if opts.ClickCount > 1 {
		playwrightOpts.ClickCount = &opts.ClickCount
	}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if err := p.page.Click(selector, playwrightOpts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Fill(selector, value string, opts FillOptions) error {
	playwrightOpts := playwright.PageFillOptions{}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if err := p.page.Fill(selector, value, playwrightOpts); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Hover(selector string, opts HoverOptions) error {
	playwrightOpts := playwright.PageHoverOptions{}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if err := p.page.Hover(selector, playwrightOpts); err != nil {
		return fmt.Errorf("hover failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) SelectOption(selector string, values []string, opts SelectOptions) ([]string, error) {
	selectValues := playwright.SelectOptionValues{Values: &values}
	playwrightOpts := playwright.PageSelectOptionOptions{}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	selected, err := p.page.SelectOption(selector, selectValues, playwrightOpts)
	if err != nil {
		return nil, fmt.Errorf("select option failed: %w", err)
	}
	return selected, nil
}

func (p *playwrightPage) Evaluate(expression string) (interface{}, error) {
	result, err := p.page.Evaluate(expression)
	if err != nil {
		return nil, fmt.Errorf("JavaScript execution failed: %w", err)
	}
	return result, nil
}

func (p *playwrightPage) Close() error {
	_ = p.page.Close() // Ignore errors, continue cleanup
	return p.context.Close()
}
