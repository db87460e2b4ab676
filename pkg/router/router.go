// Package router turns named operation calls into response envelopes. It
// owns the dispatch table, call timing, trace ids, and the guarantee that
// logging can never change an outcome.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
)

// HandlerFunc executes one operation. A returned error becomes the
// envelope's error field; a returned value becomes its data field.
type HandlerFunc func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error)

// Guard admits or rejects a call before dispatch. The security
// controller implements this.
type Guard interface {
	Validate(op protocol.Operation, args json.RawMessage, cctx protocol.CallContext) (protocol.CallContext, error)
}

// Router dispatches calls against the closed operation set plus any
// explicitly registered plugin operations.
type Router struct {
	mu       sync.RWMutex
	handlers map[protocol.Operation]HandlerFunc
	plugins  map[string]HandlerFunc

	guard   Guard
	logger  logging.Logger
	nowFunc func() time.Time
}

// New creates a router. A nil guard skips admission, which only test
// setups use.
func New(guard Guard, logger logging.Logger) *Router {
	return &Router{
		handlers: make(map[protocol.Operation]HandlerFunc),
		plugins:  make(map[string]HandlerFunc),
		guard:    guard,
		logger:   logging.OrNop(logger),
		nowFunc:  time.Now,
	}
}

// Register binds a handler to one of the built-in operations.
func (r *Router) Register(op protocol.Operation, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[op] = h
}

// RegisterPlugin binds a handler to an extension operation. Plugin names
// must not shadow built-ins and must be unique; registration happens
// before serving begins.
func (r *Router) RegisterPlugin(name string, h HandlerFunc) error {
	if _, ok := protocol.ParseOperation(name); ok {
		return fmt.Errorf("plugin name %q shadows a built-in operation", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q is already registered", name)
	}
	r.plugins[name] = h
	return nil
}

// Operations returns every dispatchable operation name, built-ins first.
func (r *Router) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers)+len(r.plugins))
	for _, op := range protocol.Operations() {
		if _, ok := r.handlers[op]; ok {
			names = append(names, string(op))
		}
	}
	for name := range r.plugins {
		names = append(names, name)
	}
	return names
}

// Handle runs one call end to end: admission, dispatch, envelope. The
// return value is either a protocol.Envelope or, when the handler already
// produced an envelope-shaped map, that map augmented with timing and
// trace fields.
func (r *Router) Handle(ctx context.Context, cctx protocol.CallContext, name string, args json.RawMessage) interface{} {
	start := r.nowFunc()
	traceID := uuid.New().String()

	op, known := protocol.ParseOperation(name)
	if !known {
		op = protocol.Operation(name)
	}

	r.logSafe(func() {
		r.logger.Infof("call start: op=%s trace=%s team=%s", name, traceID, cctx.TeamID)
	})

	result, err := r.execute(ctx, cctx, op, name, known, args)
	durationMs := float64(r.nowFunc().Sub(start).Microseconds()) / 1000.0

	var out interface{}
	var success bool
	switch {
	case err != nil:
		out = protocol.Fail(err, durationMs, traceID)
	default:
		if shaped, ok := protocol.IsEnvelopeShaped(result); ok {
			out = protocol.AugmentEnvelope(shaped, durationMs, traceID)
			success, _ = shaped["success"].(bool)
		} else {
			out = protocol.OK(result, durationMs, traceID)
			success = true
		}
	}

	r.logSafe(func() {
		if err != nil {
			r.logger.Warnf("call failed: op=%s trace=%s duration=%.1fms err=%v", name, traceID, durationMs, err)
			return
		}
		r.logger.Infof("call done: op=%s trace=%s duration=%.1fms success=%v", name, traceID, durationMs, success)
	})
	return out
}

func (r *Router) execute(ctx context.Context, cctx protocol.CallContext, op protocol.Operation, name string, known bool, args json.RawMessage) (interface{}, error) {
	if r.guard != nil {
		admitted, err := r.guard.Validate(op, args, cctx)
		if err != nil {
			return nil, err
		}
		cctx = admitted
	}

	handler := r.resolve(op, name, known)
	if handler == nil {
		return nil, protocol.NewUnknownOperation(name)
	}
	return r.invoke(handler, ctx, cctx, args)
}

func (r *Router) resolve(op protocol.Operation, name string, known bool) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if known {
		return r.handlers[op]
	}
	return r.plugins[name]
}

// invoke shields the router from handler panics; a panicking operation
// becomes an INTERNAL_ERROR envelope instead of tearing down the server.
func (r *Router) invoke(h HandlerFunc, ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = protocol.NewError(protocol.CodeInternal, fmt.Sprintf("operation panicked: %v", p))
		}
	}()
	return h(ctx, cctx, args)
}

// logSafe runs a log statement behind a recover guard. A failing logger
// must never abort or alter a call's outcome.
func (r *Router) logSafe(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
