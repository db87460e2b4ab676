// Package transport bridges client connections to router calls.
//
// Two transports share one operation catalog:
//
//   - Stdio: a single long-lived duplex pipe served with the official
//     MCP Go SDK. One call executes at a time. Used when the server is
//     spawned as a child process by an MCP client.
//   - HTTP: a single /mcp endpoint speaking JSON-RPC 2.0. POST carries
//     single calls and batches, GET with SSE content negotiation opens
//     a streaming channel, DELETE ends the transport session.
//
// # Transport Sessions
//
// The HTTP initialize handshake mints an Mcp-Session-Id that clients
// echo on subsequent requests. Operation calls on sessions that never
// initialized are rejected at the transport boundary.
//
// # Streaming Channels
//
// A session may hold any number of streaming channels. Each channel is
// OPEN while registered and moves to CLOSED on disconnect or session
// end; closing the last channel removes the session's registry entry.
// Progress notifications published for a session fan out to all of its
// channels, and slow consumers drop frames rather than stall the call
// that produced them. Idle channels receive comment-frame heartbeats.
//
// # Envelope Rendering
//
// Both transports render the router's response envelope as JSON text
// content. The MCP IsError flag mirrors the envelope's success field,
// so protocol-aware clients and plain-text consumers see the same
// outcome.
package transport
