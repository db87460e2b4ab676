package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/router"
)

// headerSessionID carries the transport session id minted by initialize.
const headerSessionID = "Mcp-Session-Id"

// maxRequestBytes caps the request body read on the /mcp endpoint.
const maxRequestBytes = 8 << 20

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// Addr is the listen address, e.g. ":8900".
	Addr string

	// AuthToken enables bearer-token auth when non-empty.
	AuthToken string

	// DefaultTeamID is attributed to calls that name no team.
	DefaultTeamID string

	// HeartbeatInterval is the idle keepalive period on streaming
	// channels. Zero selects a 15 second default.
	HeartbeatInterval time.Duration

	// ServerName and ServerVersion identify this server during the
	// initialize handshake.
	ServerName    string
	ServerVersion string
}

// HTTPServer serves the MCP protocol over a single /mcp endpoint:
// JSON-RPC singles and batches via POST, streaming channels via GET
// with SSE content negotiation, session teardown via DELETE.
type HTTPServer struct {
	cfg      HTTPConfig
	router   *router.Router
	channels *ChannelRegistry
	logger   logging.Logger

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewHTTPServer wires an HTTP transport in front of the router.
func NewHTTPServer(cfg HTTPConfig, rt *router.Router, logger logging.Logger) *HTTPServer {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "brooklyn"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	log := logging.OrNop(logger)
	return &HTTPServer{
		cfg:      cfg,
		router:   rt,
		channels: NewChannelRegistry(log),
		logger:   log,
		sessions: make(map[string]time.Time),
	}
}

// Handler returns the root handler for the transport.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

// ListenAndServe runs the transport until ctx is cancelled, then shuts
// down gracefully.
func (s *HTTPServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Infof("HTTP transport listening on %s", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *HTTPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// authorized checks the bearer token when auth is enabled.
func (s *HTTPServer) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	token := bearerToken(r)
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}

func (s *HTTPServer) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, codeParseError, "unreadable request body"))
		return
	}

	if isBatch(body) {
		s.handleBatch(w, r, body)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, codeParseError, "parse error"))
		return
	}

	resp, minted := s.dispatch(r, req)
	if minted != "" {
		w.Header().Set(headerSessionID, minted)
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if wantsSSE(r) {
		s.writeOneShot(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBatch processes a JSON array of calls sequentially. Entries
// with ids produce response entries in order; notifications are
// executed for effect only. An all-notification batch yields 202 with
// no body.
func (s *HTTPServer) handleBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, codeParseError, "parse error"))
		return
	}
	if len(entries) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, codeInvalidRequest, "empty batch"))
		return
	}

	responses := make([]*rpcResponse, 0, len(entries))
	minted := ""
	for _, raw := range entries {
		var req rpcRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			responses = append(responses, errorResponse(nil, codeInvalidRequest, "invalid request"))
			continue
		}
		resp, sessionID := s.dispatch(r, req)
		if sessionID != "" && minted == "" {
			minted = sessionID
		}
		if resp != nil {
			responses = append(responses, resp)
		}
	}

	if minted != "" {
		w.Header().Set(headerSessionID, minted)
	}
	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if wantsSSE(r) {
		s.writeOneShot(w, responses)
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

// dispatch executes one JSON-RPC request. The second return value is a
// freshly minted transport session id when the request was initialize.
// A nil response means the request was a notification.
func (s *HTTPServer) dispatch(r *http.Request, req rpcRequest) (*rpcResponse, string) {
	if req.JSONRPC != "2.0" {
		if req.isNotification() {
			return nil, ""
		}
		return errorResponse(req.ID, codeInvalidRequest, "invalid request"), ""
	}

	switch req.Method {
	case "initialize":
		sessionID := uuid.New().String()
		s.mu.Lock()
		s.sessions[sessionID] = time.Now()
		s.mu.Unlock()
		s.logger.Infof("Transport session %s initialized", sessionID)
		return okResponse(req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: map[string]any{
				"tools": map[string]any{},
			},
			ServerInfo: serverInfo{Name: s.cfg.ServerName, Version: s.cfg.ServerVersion},
		}), sessionID

	case "notifications/initialized":
		return nil, ""

	case "ping":
		if req.isNotification() {
			return nil, ""
		}
		return okResponse(req.ID, map[string]any{}), ""

	case "tools/list":
		if req.isNotification() {
			return nil, ""
		}
		return okResponse(req.ID, toolsListResult{Tools: s.toolDescriptors()}), ""

	case "tools/call":
		resp := s.callTool(r, req)
		if req.isNotification() {
			return nil, ""
		}
		return resp, ""

	default:
		if req.isNotification() {
			return nil, ""
		}
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)), ""
	}
}

// callTool funnels a tools/call request through the router and renders
// the envelope as MCP text content. Operation calls require an
// initialized transport session.
func (s *HTTPServer) callTool(r *http.Request, req rpcRequest) *rpcResponse {
	sessionID := r.Header.Get(headerSessionID)
	if !s.sessionInitialized(sessionID) {
		return errorResponse(req.ID, codeInvalidRequest, "session not initialized: call initialize first")
	}

	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params")
	}
	if strings.TrimSpace(params.Name) == "" {
		return errorResponse(req.ID, codeInvalidParams, "invalid params: missing tool name")
	}

	args := params.Arguments
	if args == nil {
		args = json.RawMessage("{}")
	}

	cctx := protocol.CallContext{
		TeamID:    s.cfg.DefaultTeamID,
		SessionID: sessionID,
	}
	if params.Meta != nil && params.Meta.ProgressToken != nil {
		cctx.ProgressToken = params.Meta.ProgressToken
		cctx.Notify = func(ev protocol.ProgressEvent) {
			s.channels.Publish(sessionID, progressNotification(ev))
		}
	}

	result := s.router.Handle(r.Context(), cctx, params.Name, args)
	text, isErr := renderEnvelope(result)
	return okResponse(req.ID, toolsCallResult{
		Content: []toolContent{{Type: "text", Text: text}},
		IsError: isErr,
	})
}

// handleStream upgrades a GET into a long-lived SSE channel registered
// under the caller's transport session. Progress notifications for the
// session fan out here; idle periods are bridged with comment-frame
// heartbeats.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if !wantsSSE(r) {
		writeJSON(w, http.StatusNotAcceptable, map[string]string{"error": "streaming requires Accept: text/event-stream"})
		return
	}

	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing " + headerSessionID + " header"})
		return
	}
	if !s.sessionInitialized(sessionID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transport session"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	ch := s.channels.Open(sessionID)
	defer s.channels.Close(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data, open := <-ch.C:
			if !open {
				// Session ended while streaming.
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// handleDelete ends a transport session: the session id is forgotten
// and all of its streaming channels are closed.
func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing " + headerSessionID + " header"})
		return
	}

	s.mu.Lock()
	_, known := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transport session"})
		return
	}

	closed := s.channels.CloseSession(sessionID)
	s.logger.Infof("Transport session %s ended (%d channels closed)", sessionID, closed)
	w.WriteHeader(http.StatusNoContent)
}

// writeOneShot renders a response as a single-event SSE stream: exactly
// one data event, then the stream ends.
func (s *HTTPServer) writeOneShot(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "response serialization failed"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *HTTPServer) sessionInitialized(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

func (s *HTTPServer) toolDescriptors() []toolDescriptor {
	defs := Catalog(s.router.Operations())
	out := make([]toolDescriptor, 0, len(defs))
	for _, def := range defs {
		out = append(out, toolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Schema,
		})
	}
	return out
}

// Registry exposes the streaming channel registry, mainly for tests
// and diagnostics.
func (s *HTTPServer) Registry() *ChannelRegistry {
	return s.channels
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.Fields(auth)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
