package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/config"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/pool"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/security"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/session"
)

// Bindings connects the router to the server's functional cores.
type Bindings struct {
	Sessions *session.Manager
	Security *security.Controller
	Pool     *pool.Pool
}

// StatusResult is the browser_status payload: the session table plus the
// pool's authoritative capacity view.
type StatusResult struct {
	session.Status
	Pool pool.Status `json:"pool"`
}

// SecurityUpdateResult is the security_update_config payload.
type SecurityUpdateResult struct {
	Applied bool                  `json:"applied"`
	Config  config.SecurityConfig `json:"config"`
}

// BindOperations registers a handler for every built-in operation.
func (r *Router) BindOperations(b Bindings) {
	r.Register(protocol.OpLaunch, func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error) {
		var launchArgs session.LaunchArgs
		if len(args) > 0 {
			if err := json.Unmarshal(args, &launchArgs); err != nil {
				return nil, protocol.NewInvalidInput(fmt.Sprintf("malformed arguments: %v", err))
			}
		}
		return b.Sessions.Launch(ctx, cctx, launchArgs)
	})

	for _, op := range protocol.Operations() {
		if !op.SessionScoped() {
			continue
		}
		op := op
		r.Register(op, func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error) {
			return b.Sessions.Dispatch(ctx, cctx, op, args)
		})
	}

	r.Register(protocol.OpStatus, func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error) {
		return &StatusResult{
			Status: b.Sessions.Status(),
			Pool:   b.Pool.Status(),
		}, nil
	})

	r.Register(protocol.OpSecurityStatus, func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error) {
		return b.Security.Snapshot(), nil
	})

	r.Register(protocol.OpSecurityUpdate, func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error) {
		var patch config.SecurityPatch
		if len(args) > 0 {
			if err := json.Unmarshal(args, &patch); err != nil {
				return nil, protocol.NewInvalidInput(fmt.Sprintf("malformed arguments: %v", err))
			}
		}

		updated, err := b.Security.UpdateConfig(patch)
		if err != nil {
			return nil, err
		}

		// Capacity changes take effect immediately; active instances are
		// never evicted by a shrink.
		b.Pool.Resize(updated.MaxInstances)

		return &SecurityUpdateResult{Applied: true, Config: updated}, nil
	})
}
