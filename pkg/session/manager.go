package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/pool"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// Session binds a pool lease to a public browserId. The instance stays
// active in the pool for the whole session lifetime; the lease is released
// exactly once, when the session closes.
type Session struct {
	mu         sync.Mutex
	browserID  string
	teamID     string
	engineType engine.Type
	headless   bool
	instance   *pool.Instance
	page       engine.Page
	currentURL string
	createdAt  time.Time
	lastUsedAt time.Time

	// gate serializes calls against this session. It holds one token;
	// a caller takes it for the duration of an operation.
	gate chan struct{}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	s.gate <- struct{}{}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsedAt = now
}

func (s *Session) setCurrentURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentURL = url
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		BrowserID:  s.browserID,
		EngineType: s.engineType,
		Headless:   s.headless,
		TeamID:     s.teamID,
		CurrentURL: s.currentURL,
		CreatedAt:  s.createdAt,
		LastUsedAt: s.lastUsedAt,
	}
}

// Config carries the manager's launch defaults.
type Config struct {
	// DefaultEngine is used when browser_launch omits engineType.
	DefaultEngine engine.Type

	// Headless is the default mode when browser_launch omits headless.
	Headless bool
}

// Manager owns the browserId table and runs every session-scoped operation
// against the underlying engine page. Calls naming the same browserId are
// serialized; calls on different sessions run concurrently.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	pool    *pool.Pool
	logger  logging.Logger
	cfg     Config
	nowFunc func() time.Time
}

// NewManager creates a session manager on top of the given pool.
func NewManager(p *pool.Pool, cfg Config, logger logging.Logger) *Manager {
	if cfg.DefaultEngine == "" {
		cfg.DefaultEngine = engine.TypeChromium
	}
	return &Manager{
		sessions: make(map[string]*Session),
		pool:     p,
		logger:   logging.OrNop(logger),
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// Launch allocates a browser instance from the pool and registers a new
// session under a freshly minted browserId.
func (m *Manager) Launch(ctx context.Context, cctx protocol.CallContext, args LaunchArgs) (*Descriptor, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}

	engineType := m.cfg.DefaultEngine
	if args.EngineType != "" {
		engineType, _ = engine.ParseType(args.EngineType)
	}
	headless := m.cfg.Headless
	if args.Headless != nil {
		headless = *args.Headless
	}

	cctx.Progress(0.1, "allocating browser instance")

	alloc, err := m.pool.Allocate(ctx, engineType,
		engine.LaunchOptions{Headless: headless},
		engine.PageOptions{Viewport: args.Viewport, UserAgent: args.UserAgent})
	if err != nil {
		return nil, err
	}

	cctx.Progress(0.7, "browser instance ready")

	now := m.nowFunc()
	s := &Session{
		browserID:  uuid.New().String(),
		teamID:     cctx.TeamID,
		engineType: engineType,
		headless:   headless,
		instance:   alloc.Instance,
		page:       alloc.Page,
		currentURL: "about:blank",
		createdAt:  now,
		lastUsedAt: now,
		gate:       make(chan struct{}, 1),
	}
	s.gate <- struct{}{}

	userAgent := args.UserAgent
	if userAgent == "" {
		// Best effort; a probe failure leaves the field empty.
		if value, evalErr := alloc.Page.Evaluate("navigator.userAgent"); evalErr == nil {
			if ua, ok := value.(string); ok {
				userAgent = ua
			}
		}
	}

	viewport := engine.Viewport{Width: engine.DefaultViewportWidth, Height: engine.DefaultViewportHeight}
	if args.Viewport != nil {
		viewport = *args.Viewport
	}

	m.mu.Lock()
	m.sessions[s.browserID] = s
	m.mu.Unlock()

	m.logger.Infof("session %s launched: engine=%s headless=%v instance=%s alloc=%.1fms",
		s.browserID, engineType, headless, alloc.Instance.ID(), alloc.AllocationTimeMs)
	cctx.Progress(1, "browser session ready")

	return &Descriptor{
		BrowserID:  s.browserID,
		EngineType: engineType,
		Headless:   headless,
		UserAgent:  userAgent,
		Viewport:   viewport,
	}, nil
}

// Dispatch runs one session-scoped operation. The target browserId is read
// from the operation's own arguments.
func (m *Manager) Dispatch(ctx context.Context, cctx protocol.CallContext, op protocol.Operation, args json.RawMessage) (interface{}, error) {
	switch op {
	case protocol.OpNavigate:
		return m.navigate(ctx, cctx, args)
	case protocol.OpClick:
		return m.click(ctx, args)
	case protocol.OpFill:
		return m.fill(ctx, args)
	case protocol.OpHover:
		return m.hover(ctx, args)
	case protocol.OpSelectOption:
		return m.selectOption(ctx, args)
	case protocol.OpEvaluate:
		return m.evaluate(ctx, args)
	case protocol.OpScreenshot:
		return m.screenshot(ctx, args)
	case protocol.OpExtractContent:
		return m.extract(ctx, args)
	case protocol.OpClose:
		return m.Close(ctx, cctx, args)
	default:
		return nil, protocol.NewUnknownOperation(string(op))
	}
}

// Owner reports the team that launched the given session. The second
// return is false when the session does not exist.
func (m *Manager) Owner(browserID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[browserID]
	if !ok {
		return "", false
	}
	return s.teamID, true
}

// Status returns the manager's session table view. Capacity numbers come
// from the pool, which stays authoritative.
func (m *Manager) Status() Status {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })

	return Status{
		ActiveSessions: len(infos),
		MaxInstances:   m.pool.MaxInstances(),
		Sessions:       infos,
	}
}

// Close tears down one session: the page closes, the lease returns to the
// pool, and the browserId disappears from the table. The release happens
// exactly once even under concurrent close calls.
func (m *Manager) Close(ctx context.Context, cctx protocol.CallContext, raw json.RawMessage) (interface{}, error) {
	var args CloseArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	s, err := m.lookup(args.BrowserID)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	// The delete is the linearization point: whichever closer removes the
	// entry performs the teardown, later ones see SESSION_NOT_FOUND.
	m.mu.Lock()
	if _, ok := m.sessions[args.BrowserID]; !ok {
		m.mu.Unlock()
		return nil, protocol.NewSessionNotFound(args.BrowserID)
	}
	delete(m.sessions, args.BrowserID)
	m.mu.Unlock()

	_ = s.page.Close() // Ignore errors, continue cleanup
	if err := m.pool.Release(s.instance.ID()); err != nil {
		m.logger.Warnf("session %s: lease release failed: %v", args.BrowserID, err)
	}

	m.logger.Infof("session %s closed", args.BrowserID)
	return &CloseResult{BrowserID: args.BrowserID, Closed: true}, nil
}

// Shutdown closes every session. The pool destroys the underlying
// instances during its own shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		_ = s.page.Close() // Ignore errors, continue cleanup
		if err := m.pool.Release(s.instance.ID()); err != nil {
			m.logger.Warnf("session %s: lease release failed during shutdown: %v", id, err)
		}
	}
}

func (m *Manager) lookup(browserID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[browserID]
	if !ok {
		return nil, protocol.NewSessionNotFound(browserID)
	}
	return s, nil
}

// withSession runs fn with the session's gate held and LastUsedAt refreshed.
func (m *Manager) withSession(ctx context.Context, browserID string, fn func(s *Session) (interface{}, error)) (interface{}, error) {
	s, err := m.lookup(browserID)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	s.touch(m.nowFunc())
	return fn(s)
}

func (m *Manager) navigate(ctx context.Context, cctx protocol.CallContext, raw json.RawMessage) (interface{}, error) {
	var args NavigateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	return m.withSession(ctx, args.BrowserID, func(s *Session) (interface{}, error) {
		cctx.Progress(0.2, fmt.Sprintf("navigating to %s", args.URL))

		status, err := s.page.Goto(args.URL, engine.NavigateOptions{
			WaitUntil: args.WaitUntil,
			Timeout:   args.Timeout,
		})
		if err != nil {
			s.instance.RecordFailure()
			return nil, protocol.NewUpstreamFailure("navigate", err)
		}
		s.instance.RecordSuccess()
		s.setCurrentURL(s.page.URL())

		title, _ := s.page.Title()
		cctx.Progress(1, "navigation complete")

		return &NavigateResult{
			BrowserID: args.BrowserID,
			URL:       s.page.URL(),
			Status:    status,
			Title:     title,
		}, nil
	})
}

func (m *Manager) click(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ClickArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	return m.withSession(ctx, args.BrowserID, func(s *Session) (interface{}, error) {
		err := s.page.Click(args.Selector, engine.ClickOptions{
			Button:     args.Button,
			ClickCount: args.ClickCount,
			Timeout:    args.Timeout,
		})
		if err != nil {
			s.instance.RecordFailure()
			return nil, protocol.NewUpstreamFailure("click", err)
		}
		s.instance.RecordSuccess()

		// A click can trigger navigation.
		s.setCurrentURL(s.page.URL())
		return &ClickResult{
			BrowserID:  args.BrowserID,
			Selector:   args.Selector,
			CurrentURL: s.page.URL(),
		}, nil
	})
}

func (m *Manager) fill(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args FillArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	return m.withSession(ctx, args.BrowserID, func(s *Session) (interface{}, error) {
		err := s.page.Fill(args.Selector, args.Value, engine.FillOptions{Timeout: args.Timeout})
		if err != nil {
			s.instance.RecordFailure()
			return nil, protocol.NewUpstreamFailure("fill", err)
		}
		s.instance.RecordSuccess()
		return &FillResult{BrowserID: args.BrowserID, Selector: args.Selector}, nil
	})
}

func (m *Manager) hover(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args HoverArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	return m.withSession(ctx, args.BrowserID, func(s *Session) (interface{}, error) {
		err := s.page.Hover(args.Selector, engine.HoverOptions{Timeout: args.Timeout})
		if err != nil {
			s.instance.RecordFailure()
			return nil, protocol.NewUpstreamFailure("hover", err)
		}
		s.instance.RecordSuccess()
		return &HoverResult{BrowserID: args.BrowserID, Selector: args.Selector}, nil
	})
}

func (m *Manager) selectOption(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args SelectArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	return m.withSession(ctx, args.BrowserID, func(s *Session) (interface{}, error) {
		selected, err := s.page.SelectOption(args.Selector, args.Values, engine.SelectOptions{Timeout: args.Timeout})
		if err != nil {
			s.instance.RecordFailure()
			return nil, protocol.NewUpstreamFailure("selectOption", err)
		}
		s.instance.RecordSuccess()
		return &SelectResult{
			BrowserID: args.BrowserID,
			Selector:  args.Selector,
			Selected:  selected,
		}, nil
	})
}

func (m *Manager) evaluate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args EvaluateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	return m.withSession(ctx, args.BrowserID, func(s *Session) (interface{}, error) {
		value, err := s.page.Evaluate(args.Expression)
		if err != nil {
			return nil, protocol.NewUpstreamFailure("evaluate", err)
		}
		return &EvaluateResult{BrowserID: args.BrowserID, Result: value}, nil
	})
}

func (m *Manager) screenshot(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ScreenshotArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	return m.withSession(ctx, args.BrowserID, func(s *Session) (interface{}, error) {
		data, err := s.page.Screenshot(engine.ScreenshotOptions{FullPage: args.FullPage})
		if err != nil {
			s.instance.RecordFailure()
			return nil, protocol.NewUpstreamFailure("screenshot", err)
		}
		s.instance.RecordSuccess()
		return &ScreenshotResult{
			BrowserID: args.BrowserID,
			Format:    "png",
			FullPage:  args.FullPage,
			Data:      base64.StdEncoding.EncodeToString(data),
		}, nil
	})
}

func (m *Manager) extract(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ExtractArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	opts := ExtractOptions{
		Format:    FormatMarkdown,
		Selector:  args.Selector,
		MaxLength: DefaultMaxLength,
	}
	if args.Format != "" {
		opts.Format = Format(args.Format)
	}
	if args.MaxLength != nil {
		opts.MaxLength = *args.MaxLength
	}

	return m.withSession(ctx, args.BrowserID, func(s *Session) (interface{}, error) {
		rawHTML, err := s.page.Content()
		if err != nil {
			s.instance.RecordFailure()
			return nil, protocol.NewUpstreamFailure("extractContent", err)
		}
		s.instance.RecordSuccess()

		content, truncated, err := extractContent(rawHTML, opts)
		if err != nil {
			return nil, err
		}
		return &ExtractResult{
			BrowserID: args.BrowserID,
			URL:       s.page.URL(),
			Format:    opts.Format,
			Content:   content,
			Truncated: truncated,
		}, nil
	})
}

func decodeArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.NewInvalidInput(fmt.Sprintf("malformed arguments: %v", err))
	}
	return nil
}
