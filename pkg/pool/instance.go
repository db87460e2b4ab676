// Package pool owns the bounded collection of browser-engine processes:
// allocation, release, health-based eviction, and the hard capacity limit.
package pool

import (
	"sync"
	"time"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/engine"
)

// Health describes an instance's fitness for reuse.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthDead     Health = "dead"
)

// Consecutive operation failures before an instance is marked degraded and
// destroyed instead of reused.
const degradedFailureThreshold = 3

// Instance is a handle to one launched browser-engine process. The process
// handle is exclusively owned by the Instance; borrowers get pages, never
// the Browser itself.
type Instance struct {
	mu         sync.Mutex
	id         string
	engineType engine.Type
	headless   bool
	browser    engine.Browser
	createdAt  time.Time
	lastUsedAt time.Time
	health     Health
	openPages  int
	failures   int
}

// ID returns the opaque instance id.
func (i *Instance) ID() string { return i.id }

// EngineType returns the engine type this instance was launched as.
func (i *Instance) EngineType() engine.Type { return i.engineType }

// Headless reports the launch mode; idle reuse only matches like-for-like.
func (i *Instance) Headless() bool { return i.headless }

// CreatedAt returns the launch timestamp.
func (i *Instance) CreatedAt() time.Time { return i.createdAt }

// LastUsedAt returns the last allocation or release timestamp.
func (i *Instance) LastUsedAt() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastUsedAt
}

// Health returns the current health without probing the process.
func (i *Instance) Health() Health {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.health
}

// OpenPages returns the number of pages currently leased out.
func (i *Instance) OpenPages() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.openPages
}

// Touch refreshes the last-used timestamp.
func (i *Instance) Touch(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastUsedAt = now
}

// RecordFailure notes a failed operation on this instance. Enough of them
// in a row degrade it so the next release destroys instead of reusing it.
func (i *Instance) RecordFailure() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failures++
	if i.failures >= degradedFailureThreshold && i.health == HealthHealthy {
		i.health = HealthDegraded
	}
}

// RecordSuccess resets the consecutive-failure count.
func (i *Instance) RecordSuccess() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failures = 0
}

// Probe checks the process and returns the effective health. A dead
// process is terminal regardless of prior state.
func (i *Instance) Probe() Health {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.health == HealthDead {
		return HealthDead
	}
	if !i.browser.Connected() {
		i.health = HealthDead
		return HealthDead
	}
	return i.health
}

// NewPage hands out a fresh isolated page, tracking it until closed.
func (i *Instance) NewPage(opts engine.PageOptions) (engine.Page, error) {
	page, err := i.browser.NewPage(opts)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	i.openPages++
	i.mu.Unlock()

	return &leasedPage{Page: page, instance: i}, nil
}

func (i *Instance) pageClosed() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.openPages > 0 {
		i.openPages--
	}
}

// destroy terminates the process. The instance is dead afterwards even if
// the close failed; a wedged process must not keep its pool slot.
func (i *Instance) destroy() error {
	i.mu.Lock()
	i.health = HealthDead
	i.mu.Unlock()
	return i.browser.Close()
}

// leasedPage decrements the owning instance's page count exactly once on
// close, no matter how many times Close is called.
type leasedPage struct {
	engine.Page
	instance *Instance
	once     sync.Once
}

func (p *leasedPage) Close() error {
	var err error
	p.once.Do(func() {
		p.instance.pageClosed()
		err = p.Page.Close()
	})
	return err
}
