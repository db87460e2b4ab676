package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/pool"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// stubPage implements engine.Page and records the calls it receives.
type stubPage struct {
	owner *stubEngine

	mu         sync.Mutex
	url        string
	title      string
	status     int
	content    string
	userAgent  string
	evalResult interface{}
	evalErr    error
	gotoErr    error
	clickErr   error
	closed     bool

	lastGotoOpts engine.NavigateOptions
	lastClick    string
	lastClickOpt engine.ClickOptions
	lastFill     [2]string
	lastHover    string
	lastSelect   []string
	lastEval     string
	lastShot     engine.ScreenshotOptions

	// gotoHold, when set, blocks Goto until the channel closes.
	gotoHold chan struct{}
}

func (p *stubPage) Goto(url string, opts engine.NavigateOptions) (int, error) {
	p.owner.enter()
	defer p.owner.exit()
	if p.gotoHold != nil {
		<-p.gotoHold
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gotoErr != nil {
		return 0, p.gotoErr
	}
	p.url = url
	p.lastGotoOpts = opts
	return p.status, nil
}

func (p *stubPage) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *stubPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *stubPage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, nil
}

func (p *stubPage) Screenshot(opts engine.ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastShot = opts
	return []byte{0x89, 0x50, 0x4e, 0x47}, nil
}

func (p *stubPage) Click(selector string, opts engine.ClickOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clickErr != nil {
		return p.clickErr
	}
	p.lastClick = selector
	p.lastClickOpt = opts
	return nil
}

func (p *stubPage) Fill(selector, value string, opts engine.FillOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastFill = [2]string{selector, value}
	return nil
}

func (p *stubPage) Hover(selector string, opts engine.HoverOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastHover = selector
	return nil
}

func (p *stubPage) SelectOption(selector string, values []string, opts engine.SelectOptions) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSelect = values
	return values, nil
}

func (p *stubPage) Evaluate(expression string) (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if expression == "navigator.userAgent" {
		return p.userAgent, nil
	}
	p.lastEval = expression
	if p.evalErr != nil {
		return nil, p.evalErr
	}
	return p.evalResult, nil
}

func (p *stubPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// stubBrowser implements engine.Browser.
type stubBrowser struct {
	owner     *stubEngine
	mu        sync.Mutex
	connected bool
}

func (b *stubBrowser) NewPage(opts engine.PageOptions) (engine.Page, error) {
	b.owner.mu.Lock()
	defer b.owner.mu.Unlock()
	b.owner.lastPageOpts = opts
	page := &stubPage{
		owner:     b.owner,
		url:       "about:blank",
		title:     "Example Domain",
		status:    200,
		content:   "<html><body><p>hello</p></body></html>",
		userAgent: "HeadlessStub/1.0",
	}
	b.owner.pages = append(b.owner.pages, page)
	return page, nil
}

func (b *stubBrowser) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *stubBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

// stubEngine implements engine.Engine and tracks call concurrency.
type stubEngine struct {
	mu           sync.Mutex
	pages        []*stubPage
	lastPageOpts engine.PageOptions

	inFlight    int32
	maxInFlight int32
}

func (e *stubEngine) Launch(ctx context.Context, engineType engine.Type, opts engine.LaunchOptions) (engine.Browser, error) {
	return &stubBrowser{owner: e, connected: true}, nil
}

func (e *stubEngine) Shutdown() error { return nil }

func (e *stubEngine) enter() {
	current := atomic.AddInt32(&e.inFlight, 1)
	for {
		max := atomic.LoadInt32(&e.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&e.maxInFlight, max, current) {
			return
		}
	}
}

func (e *stubEngine) exit() {
	atomic.AddInt32(&e.inFlight, -1)
}

func (e *stubEngine) page(i int) *stubPage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pages[i]
}

func newTestManager(maxInstances int) (*Manager, *stubEngine, *pool.Pool) {
	eng := &stubEngine{}
	factory := pool.NewFactory(eng, nil)
	p := pool.New(factory, pool.Config{MaxInstances: maxInstances, IdleTimeout: 5 * time.Minute}, nil)
	m := NewManager(p, Config{DefaultEngine: engine.TypeChromium, Headless: true}, nil)
	return m, eng, p
}

func launchSession(t *testing.T, m *Manager) *Descriptor {
	t.Helper()
	desc, err := m.Launch(context.Background(), protocol.CallContext{}, LaunchArgs{})
	require.NoError(t, err)
	require.NotEmpty(t, desc.BrowserID)
	return desc
}

func rawArgs(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestManager_LaunchReturnsDescriptor(t *testing.T) {
	m, _, _ := newTestManager(2)

	desc := launchSession(t, m)
	assert.Equal(t, engine.TypeChromium, desc.EngineType)
	assert.True(t, desc.Headless)
	assert.Equal(t, "HeadlessStub/1.0", desc.UserAgent)
	assert.Equal(t, engine.DefaultViewportWidth, desc.Viewport.Width)
	assert.Equal(t, engine.DefaultViewportHeight, desc.Viewport.Height)
}

func TestManager_LaunchHonorsExplicitOptions(t *testing.T) {
	m, eng, _ := newTestManager(2)

	headless := false
	desc, err := m.Launch(context.Background(), protocol.CallContext{}, LaunchArgs{
		EngineType: "firefox",
		Headless:   &headless,
		UserAgent:  "custom-agent",
		Viewport:   &engine.Viewport{Width: 800, Height: 600},
	})
	require.NoError(t, err)

	assert.Equal(t, engine.TypeFirefox, desc.EngineType)
	assert.False(t, desc.Headless)
	assert.Equal(t, "custom-agent", desc.UserAgent)
	assert.Equal(t, 800, desc.Viewport.Width)
	assert.Equal(t, "custom-agent", eng.lastPageOpts.UserAgent)
	require.NotNil(t, eng.lastPageOpts.Viewport)
	assert.Equal(t, 600, eng.lastPageOpts.Viewport.Height)
}

func TestManager_LaunchRejectsUnknownEngineType(t *testing.T) {
	m, _, _ := newTestManager(1)

	_, err := m.Launch(context.Background(), protocol.CallContext{}, LaunchArgs{EngineType: "netscape"})
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodeInvalidInput))
}

func TestManager_LaunchPropagatesPoolExhausted(t *testing.T) {
	m, _, _ := newTestManager(1)

	launchSession(t, m)
	_, err := m.Launch(context.Background(), protocol.CallContext{}, LaunchArgs{})
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodePoolExhausted))
}

func TestManager_LaunchRecordsOwningTeam(t *testing.T) {
	m, _, _ := newTestManager(1)

	desc, err := m.Launch(context.Background(), protocol.CallContext{TeamID: "team-a"}, LaunchArgs{})
	require.NoError(t, err)

	owner, ok := m.Owner(desc.BrowserID)
	require.True(t, ok)
	assert.Equal(t, "team-a", owner)

	_, ok = m.Owner("missing")
	assert.False(t, ok)
}

func TestManager_LaunchReportsProgress(t *testing.T) {
	m, _, _ := newTestManager(1)

	var mu sync.Mutex
	var events []protocol.ProgressEvent
	cctx := protocol.CallContext{
		ProgressToken: "tok-1",
		Notify: func(e protocol.ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		},
	}

	_, err := m.Launch(context.Background(), cctx, LaunchArgs{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := 0.0
	for _, e := range events {
		assert.Equal(t, "tok-1", e.ProgressToken)
		assert.GreaterOrEqual(t, e.Progress, last)
		assert.LessOrEqual(t, e.Progress, 1.0)
		last = e.Progress
	}
	assert.Equal(t, 1.0, events[len(events)-1].Progress)
}

func TestManager_DispatchUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(1)

	calls := map[protocol.Operation]map[string]interface{}{
		protocol.OpNavigate:       {"browserId": "ghost", "url": "https://example.com"},
		protocol.OpClick:          {"browserId": "ghost", "selector": "#go"},
		protocol.OpFill:           {"browserId": "ghost", "selector": "#name", "value": "x"},
		protocol.OpHover:          {"browserId": "ghost", "selector": "#menu"},
		protocol.OpSelectOption:   {"browserId": "ghost", "selector": "#pick", "values": []string{"a"}},
		protocol.OpEvaluate:       {"browserId": "ghost", "expression": "1+1"},
		protocol.OpScreenshot:     {"browserId": "ghost"},
		protocol.OpExtractContent: {"browserId": "ghost"},
		protocol.OpClose:          {"browserId": "ghost"},
	}

	for op, args := range calls {
		t.Run(string(op), func(t *testing.T) {
			_, err := m.Dispatch(context.Background(), protocol.CallContext{}, op, rawArgs(t, args))
			require.Error(t, err)
			assert.True(t, protocol.IsCode(err, protocol.CodeSessionNotFound))

			detail := protocol.AsError(err)
			require.NotNil(t, detail)
			assert.Equal(t, "Browser session not found", detail.Message)
		})
	}
}

func TestManager_NavigateUpdatesSessionState(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)

	result, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpNavigate,
		rawArgs(t, map[string]interface{}{
			"browserId": desc.BrowserID,
			"url":       "https://example.com/docs",
			"waitUntil": "networkidle",
			"timeout":   5000,
		}))
	require.NoError(t, err)

	nav, ok := result.(*NavigateResult)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/docs", nav.URL)
	assert.Equal(t, 200, nav.Status)
	assert.Equal(t, "Example Domain", nav.Title)

	assert.Equal(t, "networkidle", eng.page(0).lastGotoOpts.WaitUntil)
	assert.Equal(t, 5000.0, eng.page(0).lastGotoOpts.Timeout)

	st := m.Status()
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, "https://example.com/docs", st.Sessions[0].CurrentURL)
}

func TestManager_NavigateValidatesInput(t *testing.T) {
	m, _, _ := newTestManager(1)
	desc := launchSession(t, m)

	cases := []map[string]interface{}{
		{"browserId": desc.BrowserID},
		{"browserId": desc.BrowserID, "url": "no-scheme.example.com"},
		{"browserId": desc.BrowserID, "url": "https://example.com", "waitUntil": "whenever"},
		{"browserId": desc.BrowserID, "url": "https://example.com", "timeout": -1},
		{"url": "https://example.com"},
	}
	for _, args := range cases {
		_, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpNavigate, rawArgs(t, args))
		require.Error(t, err)
		assert.True(t, protocol.IsCode(err, protocol.CodeInvalidInput), "args: %v", args)
	}
}

func TestManager_NavigateWrapsEngineFailure(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)
	eng.page(0).gotoErr = fmt.Errorf("net::ERR_CONNECTION_REFUSED")

	_, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpNavigate,
		rawArgs(t, map[string]string{"browserId": desc.BrowserID, "url": "https://example.com"}))
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodeUpstreamFailure))
}

func TestManager_ClickRecordsOptions(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)

	result, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpClick,
		rawArgs(t, map[string]interface{}{
			"browserId":  desc.BrowserID,
			"selector":   "#submit",
			"button":     "left",
			"clickCount": 2,
		}))
	require.NoError(t, err)

	click, ok := result.(*ClickResult)
	require.True(t, ok)
	assert.Equal(t, "#submit", click.Selector)
	assert.Equal(t, "#submit", eng.page(0).lastClick)
	assert.Equal(t, 2, eng.page(0).lastClickOpt.ClickCount)
}

func TestManager_ClickRequiresSelector(t *testing.T) {
	m, _, _ := newTestManager(1)
	desc := launchSession(t, m)

	_, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpClick,
		rawArgs(t, map[string]string{"browserId": desc.BrowserID}))
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodeInvalidInput))
}

func TestManager_FillPassesValue(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)

	_, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpFill,
		rawArgs(t, map[string]string{"browserId": desc.BrowserID, "selector": "input[name=q]", "value": "brooklyn"}))
	require.NoError(t, err)
	assert.Equal(t, [2]string{"input[name=q]", "brooklyn"}, eng.page(0).lastFill)
}

func TestManager_HoverPassesSelector(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)

	_, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpHover,
		rawArgs(t, map[string]string{"browserId": desc.BrowserID, "selector": ".menu"}))
	require.NoError(t, err)
	assert.Equal(t, ".menu", eng.page(0).lastHover)
}

func TestManager_SelectOptionRequiresValues(t *testing.T) {
	m, _, _ := newTestManager(1)
	desc := launchSession(t, m)

	_, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpSelectOption,
		rawArgs(t, map[string]interface{}{"browserId": desc.BrowserID, "selector": "select#lang"}))
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodeInvalidInput))
}

func TestManager_SelectOptionReturnsSelection(t *testing.T) {
	m, _, _ := newTestManager(1)
	desc := launchSession(t, m)

	result, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpSelectOption,
		rawArgs(t, map[string]interface{}{
			"browserId": desc.BrowserID,
			"selector":  "select#lang",
			"values":    []string{"go"},
		}))
	require.NoError(t, err)

	sel, ok := result.(*SelectResult)
	require.True(t, ok)
	assert.Equal(t, []string{"go"}, sel.Selected)
}

func TestManager_EvaluateReturnsValue(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)
	eng.page(0).evalResult = map[string]interface{}{"answer": 42.0}

	result, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpEvaluate,
		rawArgs(t, map[string]string{"browserId": desc.BrowserID, "expression": "window.answer"}))
	require.NoError(t, err)

	eval, ok := result.(*EvaluateResult)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"answer": 42.0}, eval.Result)
	assert.Equal(t, "window.answer", eng.page(0).lastEval)
}

func TestManager_ScreenshotEncodesBase64(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)

	result, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpScreenshot,
		rawArgs(t, map[string]interface{}{"browserId": desc.BrowserID, "fullPage": true}))
	require.NoError(t, err)

	shot, ok := result.(*ScreenshotResult)
	require.True(t, ok)
	assert.Equal(t, "png", shot.Format)
	assert.True(t, shot.FullPage)
	assert.True(t, eng.page(0).lastShot.FullPage)

	decoded, err := base64.StdEncoding.DecodeString(shot.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, decoded)
}

func TestManager_ExtractContentMarkdown(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)
	eng.page(0).content = `<html><head><title>Docs</title></head><body><h2>Install</h2><p>Run the binary.</p></body></html>`

	result, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpExtractContent,
		rawArgs(t, map[string]string{"browserId": desc.BrowserID}))
	require.NoError(t, err)

	extract, ok := result.(*ExtractResult)
	require.True(t, ok)
	assert.Equal(t, FormatMarkdown, extract.Format)

	content, ok := extract.Content.(string)
	require.True(t, ok)
	assert.Contains(t, content, "# Docs")
	assert.Contains(t, content, "## Install")
	assert.Contains(t, content, "Run the binary.")
}

func TestManager_CloseReleasesLeaseOnce(t *testing.T) {
	m, _, p := newTestManager(1)
	desc := launchSession(t, m)

	result, err := m.Close(context.Background(), protocol.CallContext{}, rawArgs(t, map[string]string{"browserId": desc.BrowserID}))
	require.NoError(t, err)
	closed, ok := result.(*CloseResult)
	require.True(t, ok)
	assert.True(t, closed.Closed)

	// The lease went back to the pool exactly once.
	assert.Equal(t, 1, p.Status().Idle)

	_, err = m.Close(context.Background(), protocol.CallContext{}, rawArgs(t, map[string]string{"browserId": desc.BrowserID}))
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodeSessionNotFound))
}

func TestManager_CloseFreesCapacityForNextLaunch(t *testing.T) {
	m, _, _ := newTestManager(1)

	desc := launchSession(t, m)
	_, err := m.Close(context.Background(), protocol.CallContext{}, rawArgs(t, map[string]string{"browserId": desc.BrowserID}))
	require.NoError(t, err)

	launchSession(t, m)
}

func TestManager_CapacityLifecycle(t *testing.T) {
	m, _, _ := newTestManager(2)

	a := launchSession(t, m)
	b := launchSession(t, m)

	_, err := m.Launch(context.Background(), protocol.CallContext{}, LaunchArgs{})
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodePoolExhausted))

	_, err = m.Close(context.Background(), protocol.CallContext{}, rawArgs(t, map[string]string{"browserId": a.BrowserID}))
	require.NoError(t, err)

	d := launchSession(t, m)

	st := m.Status()
	assert.Equal(t, 2, st.ActiveSessions)
	ids := map[string]bool{}
	for _, info := range st.Sessions {
		ids[info.BrowserID] = true
	}
	assert.True(t, ids[b.BrowserID])
	assert.True(t, ids[d.BrowserID])
	assert.False(t, ids[a.BrowserID])
}

func TestManager_DispatchAfterCloseFails(t *testing.T) {
	m, _, _ := newTestManager(1)
	desc := launchSession(t, m)

	_, err := m.Close(context.Background(), protocol.CallContext{}, rawArgs(t, map[string]string{"browserId": desc.BrowserID}))
	require.NoError(t, err)

	_, err = m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpEvaluate,
		rawArgs(t, map[string]string{"browserId": desc.BrowserID, "expression": "1+1"}))
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.CodeSessionNotFound))
}

func TestManager_StatusListsSessions(t *testing.T) {
	m, _, _ := newTestManager(3)

	a, err := m.Launch(context.Background(), protocol.CallContext{TeamID: "team-a"}, LaunchArgs{})
	require.NoError(t, err)
	b, err := m.Launch(context.Background(), protocol.CallContext{TeamID: "team-b"}, LaunchArgs{})
	require.NoError(t, err)

	st := m.Status()
	assert.Equal(t, 2, st.ActiveSessions)
	assert.Equal(t, 3, st.MaxInstances)
	require.Len(t, st.Sessions, 2)

	byID := map[string]Info{}
	for _, info := range st.Sessions {
		byID[info.BrowserID] = info
	}
	assert.Equal(t, "team-a", byID[a.BrowserID].TeamID)
	assert.Equal(t, "team-b", byID[b.BrowserID].TeamID)
	assert.Equal(t, "about:blank", byID[a.BrowserID].CurrentURL)
}

func TestManager_SameSessionCallsAreSerialized(t *testing.T) {
	m, eng, _ := newTestManager(1)
	desc := launchSession(t, m)

	hold := make(chan struct{})
	eng.page(0).gotoHold = hold

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpNavigate,
				rawArgs(t, map[string]string{"browserId": desc.BrowserID, "url": "https://example.com"}))
			assert.NoError(t, err)
		}()
	}

	// Let the first call enter Goto, then release both.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&eng.inFlight) == 1
	}, 2*time.Second, 5*time.Millisecond)
	close(hold)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&eng.maxInFlight))
}

func TestManager_DifferentSessionsRunConcurrently(t *testing.T) {
	m, eng, _ := newTestManager(2)
	a := launchSession(t, m)
	b := launchSession(t, m)

	hold := make(chan struct{})
	eng.page(0).gotoHold = hold
	eng.page(1).gotoHold = hold

	var wg sync.WaitGroup
	for _, id := range []string{a.BrowserID, b.BrowserID} {
		wg.Add(1)
		go func(browserID string) {
			defer wg.Done()
			_, err := m.Dispatch(context.Background(), protocol.CallContext{}, protocol.OpNavigate,
				rawArgs(t, map[string]string{"browserId": browserID, "url": "https://example.com"}))
			assert.NoError(t, err)
		}(id)
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&eng.inFlight) == 2
	}, 2*time.Second, 5*time.Millisecond)
	close(hold)
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&eng.maxInFlight))
}

func TestManager_ShutdownReleasesAllSessions(t *testing.T) {
	m, eng, p := newTestManager(2)
	launchSession(t, m)
	launchSession(t, m)

	m.Shutdown()

	assert.Equal(t, 0, m.Status().ActiveSessions)
	assert.Equal(t, 0, p.Status().Active)
	for _, page := range eng.pages {
		assert.True(t, page.closed)
	}
}
