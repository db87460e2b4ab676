package pool

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
)

// Factory creates Instances on demand for a requested engine type.
type Factory struct {
	engine  engine.Engine
	logger  logging.Logger
	nowFunc func() time.Time
}

// NewFactory wraps an engine as an instance source.
func NewFactory(eng engine.Engine, logger logging.Logger) *Factory {
	return &Factory{
		engine:  eng,
		logger:  logging.OrNop(logger),
		nowFunc: time.Now,
	}
}

// Create launches a new browser process and wraps it as an Instance. This
// blocks while the external process starts.
func (f *Factory) Create(ctx context.Context, engineType engine.Type, opts engine.LaunchOptions) (*Instance, error) {
	browser, err := f.engine.Launch(ctx, engineType, opts)
	if err != nil {
		return nil, err
	}

	now := f.nowFunc()
	inst := &Instance{
		id:         uuid.New().String(),
		engineType: engineType,
		headless:   opts.Headless,
		browser:    browser,
		createdAt:  now,
		lastUsedAt: now,
		health:     HealthHealthy,
	}

	f.logger.Debugf("created instance %s (%s, headless=%v)", inst.id, engineType, opts.Headless)
	return inst, nil
}
