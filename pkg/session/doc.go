// Package session maps public browser session ids onto pooled browser
// instances and runs every session-scoped operation.
//
// The package is built around three core concepts:
//
//  1. Session: binds a browserId to a pool lease and its active page
//  2. Manager: the session table plus the operation dispatch surface
//  3. Extraction: html-to-text rendering for browser_extract_content
//
// # Session Lifecycle
//
// Sessions follow this lifecycle:
//
//  1. Launch: browser_launch allocates an instance and mints a browserId
//  2. Use: navigation, interaction, and extraction operate on the session
//  3. Close: browser_close releases the lease exactly once
//  4. Shutdown: remaining sessions are released during server shutdown
//
// The pool stays authoritative for capacity. A session holds its instance
// active for its whole lifetime, so the number of live sessions can never
// exceed the pool's maxInstances.
//
// # Serialization
//
// Concurrent calls naming the same browserId are serialized through a
// one-token gate per session. Calls against different sessions run
// concurrently. An unknown browserId always fails with SESSION_NOT_FOUND,
// never with a partial result.
//
// # Example Usage
//
//	manager := session.NewManager(pool, session.Config{
//	    DefaultEngine: engine.TypeChromium,
//	    Headless:      true,
//	}, logger)
//
//	desc, err := manager.Launch(ctx, cctx, session.LaunchArgs{})
//
//	result, err := manager.Dispatch(ctx, cctx, protocol.OpNavigate,
//	    json.RawMessage(`{"browserId":"`+desc.BrowserID+`","url":"https://example.com"}`))
//
//	_, err = manager.Close(ctx, cctx,
//	    json.RawMessage(`{"browserId":"`+desc.BrowserID+`"}`))
package session
