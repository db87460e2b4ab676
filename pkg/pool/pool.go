package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// Config sizes the pool.
type Config struct {
	// MaxInstances is the hard capacity limit across idle and active
	// instances, including creations still in flight.
	MaxInstances int

	// IdleTimeout is how long an instance may sit idle before the sweep
	// destroys it.
	IdleTimeout time.Duration
}

// Allocation is the result of a successful Allocate.
type Allocation struct {
	Instance         *Instance
	Page             engine.Page
	AllocationTimeMs float64
}

// Status is the pool's authoritative capacity view.
type Status struct {
	Active       int            `json:"active"`
	Idle         int            `json:"idle"`
	Total        int            `json:"total"`
	MaxInstances int            `json:"maxInstances"`
	Instances    []InstanceInfo `json:"instances"`
}

// InstanceInfo describes one pooled instance.
type InstanceInfo struct {
	ID         string      `json:"id"`
	EngineType engine.Type `json:"engineType"`
	Health     Health      `json:"health"`
	Active     bool        `json:"active"`
	OpenPages  int         `json:"openPages"`
	CreatedAt  time.Time   `json:"createdAt"`
	LastUsedAt time.Time   `json:"lastUsedAt"`
}

// Pool is the bounded collection of browser instances. An instance is in
// exactly one of the idle or active sets at any time; the mutex guards the
// capacity check-and-reserve so concurrent allocations cannot both take the
// last slot.
type Pool struct {
	mu           sync.Mutex
	factory      *Factory
	logger       logging.Logger
	maxInstances int
	idleTimeout  time.Duration
	idle         map[string]*Instance
	active       map[string]*Instance
	reserved     int
	nowFunc      func() time.Time
}

// New creates a pool. The factory's creations count against MaxInstances
// from the moment a slot is reserved, not when the process finishes
// starting.
func New(factory *Factory, cfg Config, logger logging.Logger) *Pool {
	return &Pool{
		factory:      factory,
		logger:       logging.OrNop(logger),
		maxInstances: cfg.MaxInstances,
		idleTimeout:  cfg.IdleTimeout,
		idle:         make(map[string]*Instance),
		active:       make(map[string]*Instance),
		nowFunc:      time.Now,
	}
}

// Allocate hands out an instance of the requested engine type plus a fresh
// page. Healthy idle instances are reused first; otherwise a new instance
// is created if capacity allows. There is no queuing: when the pool is
// full the call fails immediately with POOL_EXHAUSTED.
func (p *Pool) Allocate(ctx context.Context, engineType engine.Type, launchOpts engine.LaunchOptions, pageOpts engine.PageOptions) (*Allocation, error) {
	start := p.nowFunc()

	// Reuse path. A promoted instance that cannot produce a page is
	// destroyed and the search continues.
	for {
		inst := p.promoteIdle(engineType, launchOpts.Headless)
		if inst == nil {
			break
		}
		page, err := inst.NewPage(pageOpts)
		if err != nil {
			p.logger.Warnf("idle instance %s failed to produce a page, destroying: %v", inst.ID(), err)
			p.discard(inst)
			continue
		}
		inst.Touch(p.nowFunc())
		return &Allocation{
			Instance:         inst,
			Page:             page,
			AllocationTimeMs: p.sinceMs(start),
		}, nil
	}

	// Create path, against a reserved slot so the capacity check and the
	// slow process launch do not race other allocations.
	if !p.reserveSlot() {
		return nil, protocol.NewPoolExhausted(p.MaxInstances())
	}

	inst, err := p.factory.Create(ctx, engineType, launchOpts)
	if err != nil {
		p.unreserveSlot()
		return nil, protocol.NewUpstreamFailure("launch", err)
	}

	page, err := inst.NewPage(pageOpts)
	if err != nil {
		p.unreserveSlot()
		if destroyErr := inst.destroy(); destroyErr != nil {
			p.logger.Warnf("failed to destroy instance %s after page failure: %v", inst.ID(), destroyErr)
		}
		return nil, protocol.NewUpstreamFailure("launch", err)
	}

	p.mu.Lock()
	p.reserved--
	p.active[inst.ID()] = inst
	p.mu.Unlock()

	return &Allocation{
		Instance:         inst,
		Page:             page,
		AllocationTimeMs: p.sinceMs(start),
	}, nil
}

// Release returns an active instance to the pool. A healthy instance goes
// back to the idle set; anything else is destroyed. Destroy failures are
// logged, never escalated: the slot is freed regardless of whether the
// underlying process terminated cleanly.
func (p *Pool) Release(instanceID string) error {
	p.mu.Lock()
	inst, ok := p.active[instanceID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("instance %q is not active", instanceID)
	}
	delete(p.active, instanceID)

	if inst.Probe() == HealthHealthy {
		inst.Touch(p.nowFunc())
		p.idle[instanceID] = inst
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.logger.Infof("destroying unhealthy instance %s on release", instanceID)
	if err := inst.destroy(); err != nil {
		p.logger.Warnf("failed to destroy instance %s: %v", instanceID, err)
	}
	return nil
}

// Remove destroys an instance unconditionally, wherever it currently sits.
func (p *Pool) Remove(instanceID string) error {
	p.mu.Lock()
	inst, ok := p.active[instanceID]
	if ok {
		delete(p.active, instanceID)
	} else {
		inst, ok = p.idle[instanceID]
		if !ok {
			p.mu.Unlock()
			return fmt.Errorf("instance %q not found", instanceID)
		}
		delete(p.idle, instanceID)
	}
	p.mu.Unlock()

	if err := inst.destroy(); err != nil {
		p.logger.Warnf("failed to destroy instance %s: %v", instanceID, err)
	}
	return nil
}

// Status snapshots the pool.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Active:       len(p.active),
		Idle:         len(p.idle),
		Total:        len(p.active) + len(p.idle),
		MaxInstances: p.maxInstances,
		Instances:    make([]InstanceInfo, 0, len(p.active)+len(p.idle)),
	}
	for _, inst := range p.active {
		st.Instances = append(st.Instances, instanceInfo(inst, true))
	}
	for _, inst := range p.idle {
		st.Instances = append(st.Instances, instanceInfo(inst, false))
	}
	return st
}

// SweepIdle destroys idle instances that fail the health probe or have
// idled past the eviction threshold, so dead capacity never silently
// occupies a pool slot. Returns how many instances were destroyed.
func (p *Pool) SweepIdle(now time.Time) int {
	p.mu.Lock()
	var evict []*Instance
	for id, inst := range p.idle {
		if inst.Probe() != HealthHealthy || now.Sub(inst.LastUsedAt()) > p.idleTimeout {
			delete(p.idle, id)
			evict = append(evict, inst)
		}
	}
	p.mu.Unlock()

	for _, inst := range evict {
		p.logger.Infof("evicting idle instance %s (%s)", inst.ID(), inst.EngineType())
		if err := inst.destroy(); err != nil {
			p.logger.Warnf("failed to destroy instance %s: %v", inst.ID(), err)
		}
	}
	return len(evict)
}

// Resize adjusts the capacity limit at runtime. Shrinking never evicts
// live instances; it only constrains future allocations.
func (p *Pool) Resize(maxInstances int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxInstances = maxInstances
}

// MaxInstances returns the current capacity limit.
func (p *Pool) MaxInstances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInstances
}

// Shutdown destroys every instance and empties the pool.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	all := make([]*Instance, 0, len(p.active)+len(p.idle))
	for id, inst := range p.active {
		delete(p.active, id)
		all = append(all, inst)
	}
	for id, inst := range p.idle {
		delete(p.idle, id)
		all = append(all, inst)
	}
	p.mu.Unlock()

	for _, inst := range all {
		if err := inst.destroy(); err != nil {
			p.logger.Warnf("failed to destroy instance %s during shutdown: %v", inst.ID(), err)
		}
	}
}

// promoteIdle moves one matching healthy idle instance to the active set.
func (p *Pool) promoteIdle(engineType engine.Type, headless bool) *Instance {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, inst := range p.idle {
		if inst.EngineType() != engineType || inst.Headless() != headless {
			continue
		}
		if inst.Probe() != HealthHealthy {
			continue
		}
		delete(p.idle, id)
		p.active[id] = inst
		return inst
	}
	return nil
}

// discard removes an instance from the active set and destroys it.
func (p *Pool) discard(inst *Instance) {
	p.mu.Lock()
	delete(p.active, inst.ID())
	p.mu.Unlock()

	if err := inst.destroy(); err != nil {
		p.logger.Warnf("failed to destroy instance %s: %v", inst.ID(), err)
	}
}

// reserveSlot claims capacity for an in-flight creation.
func (p *Pool) reserveSlot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle)+len(p.active)+p.reserved >= p.maxInstances {
		return false
	}
	p.reserved++
	return true
}

func (p *Pool) unreserveSlot() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserved--
}

func (p *Pool) sinceMs(start time.Time) float64 {
	return float64(p.nowFunc().Sub(start).Microseconds()) / 1000.0
}

func instanceInfo(inst *Instance, active bool) InstanceInfo {
	return InstanceInfo{
		ID:         inst.ID(),
		EngineType: inst.EngineType(),
		Health:     inst.Health(),
		Active:     active,
		OpenPages:  inst.OpenPages(),
		CreatedAt:  inst.CreatedAt(),
		LastUsedAt: inst.LastUsedAt(),
	}
}
