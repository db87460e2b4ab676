package security

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/config"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// OwnerLookup resolves a browserId to the team that launched it. The
// session manager implements this.
type OwnerLookup interface {
	Owner(browserID string) (teamID string, ok bool)
}

// Controller runs the admission checks for every call, in this order:
// tenant resolution and isolation, rate limiting, domain validation.
// The first failing check rejects the call.
type Controller struct {
	mu      sync.Mutex
	cfg     config.SecurityConfig
	domains *DomainMatcher

	limiter   *RateLimiter
	owners    OwnerLookup
	logger    logging.Logger
	startedAt time.Time
	nowFunc   func() time.Time
}

// NewController builds the admission layer from the security config.
func NewController(cfg config.SecurityConfig, owners OwnerLookup, logger logging.Logger) (*Controller, error) {
	domains, err := NewDomainMatcher(cfg.AllowedDomains)
	if err != nil {
		return nil, err
	}
	return &Controller{
		cfg:       cfg.Clone(),
		domains:   domains,
		limiter:   NewRateLimiter(cfg.RateLimiting.Requests, cfg.RateLimiting.WindowMs),
		owners:    owners,
		logger:    logging.OrNop(logger),
		startedAt: time.Now(),
		nowFunc:   time.Now,
	}, nil
}

// probe is the subset of call arguments admission cares about. Full
// argument validation stays with the operation handlers.
type probe struct {
	TeamID    string `json:"teamId"`
	BrowserID string `json:"browserId"`
	URL       string `json:"url"`
}

// Validate admits or rejects a call before dispatch. On success it
// returns the call context with the resolved team id filled in; the
// returned context is what must flow to the handler.
func (c *Controller) Validate(op protocol.Operation, args json.RawMessage, cctx protocol.CallContext) (protocol.CallContext, error) {
	var p probe
	if len(args) > 0 {
		if err := json.Unmarshal(args, &p); err != nil {
			return cctx, protocol.NewInvalidInput(fmt.Sprintf("malformed arguments: %v", err))
		}
	}

	// A teamId in the arguments wins over the transport-level default.
	team := p.TeamID
	if team == "" {
		team = cctx.TeamID
	}
	cctx.TeamID = team

	c.mu.Lock()
	isolation := c.cfg.TeamIsolation
	domains := c.domains
	c.mu.Unlock()

	if isolation {
		if err := c.checkIsolation(op, team, p.BrowserID); err != nil {
			return cctx, err
		}
	}

	bucket := team
	if bucket == "" {
		bucket = AnonymousTeam
	}
	if !c.limiter.Allow(bucket) {
		c.logger.Warnf("rate limit exceeded: team=%s op=%s", bucket, op)
		return cctx, protocol.NewRateLimitExceeded(bucket, c.limiter.Limit())
	}

	if p.URL != "" {
		if err := domains.CheckURL(p.URL); err != nil {
			if protocol.IsCode(err, protocol.CodeDomainNotAllowed) {
				c.logger.Warnf("domain rejected: team=%s op=%s url=%s", bucket, op, p.URL)
			}
			return cctx, err
		}
	}

	return cctx, nil
}

// checkIsolation enforces tenant binding for launch and session-scoped
// calls when team isolation is on.
func (c *Controller) checkIsolation(op protocol.Operation, team, browserID string) error {
	scoped := op == protocol.OpLaunch || op.SessionScoped()
	if !scoped {
		return nil
	}
	if team == "" {
		return protocol.NewTeamIDRequired()
	}
	if browserID == "" || c.owners == nil {
		return nil
	}

	// An unknown browserId falls through; the session layer reports
	// SESSION_NOT_FOUND with its canonical message.
	owner, ok := c.owners.Owner(browserID)
	if ok && owner != "" && owner != team {
		return protocol.NewTeamIDMismatch(browserID)
	}
	return nil
}

// Snapshot is the security_status payload.
type Snapshot struct {
	AllowedDomains    []string            `json:"allowedDomains"`
	RateLimiting      config.RateLimiting `json:"rateLimiting"`
	MaxInstances      int                 `json:"maxInstances"`
	TeamIsolation     bool                `json:"teamIsolation"`
	ActiveRateEntries int                 `json:"activeRateEntries"`
	UptimeSeconds     float64             `json:"uptimeSeconds"`
}

// Snapshot returns the live security posture.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	cfg := c.cfg.Clone()
	c.mu.Unlock()

	return Snapshot{
		AllowedDomains:    cfg.AllowedDomains,
		RateLimiting:      cfg.RateLimiting,
		MaxInstances:      cfg.MaxInstances,
		TeamIsolation:     cfg.TeamIsolation,
		ActiveRateEntries: c.limiter.ActiveEntries(),
		UptimeSeconds:     c.nowFunc().Sub(c.startedAt).Seconds(),
	}
}

// UpdateConfig applies a partial security patch. Fields absent from the
// patch keep their current values. Either the whole patch applies or
// none of it does.
func (c *Controller) UpdateConfig(patch config.SecurityPatch) (config.SecurityConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cfg.Merge(patch)
	if next.MaxInstances < 1 {
		return config.SecurityConfig{}, protocol.NewInvalidInput(fmt.Sprintf("maxInstances must be at least 1, got %d", next.MaxInstances))
	}
	if next.RateLimiting.Requests < 1 {
		return config.SecurityConfig{}, protocol.NewInvalidInput(fmt.Sprintf("rateLimiting.requests must be at least 1, got %d", next.RateLimiting.Requests))
	}
	if next.RateLimiting.WindowMs < 1 {
		return config.SecurityConfig{}, protocol.NewInvalidInput(fmt.Sprintf("rateLimiting.windowMs must be at least 1, got %d", next.RateLimiting.WindowMs))
	}
	domains, err := NewDomainMatcher(next.AllowedDomains)
	if err != nil {
		return config.SecurityConfig{}, protocol.NewInvalidInput(err.Error())
	}

	c.cfg = next
	c.domains = domains
	c.limiter.Update(next.RateLimiting.Requests, next.RateLimiting.WindowMs)

	c.logger.Infof("security config updated: domains=%d requests=%d windowMs=%d maxInstances=%d isolation=%v",
		len(next.AllowedDomains), next.RateLimiting.Requests, next.RateLimiting.WindowMs,
		next.MaxInstances, next.TeamIsolation)

	return next.Clone(), nil
}

// Config returns a copy of the current security config.
func (c *Controller) Config() config.SecurityConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

// SweepExpiredRateEntries drops rate windows that ended before now.
func (c *Controller) SweepExpiredRateEntries(now time.Time) int {
	return c.limiter.SweepExpired(now)
}
