package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/router"
)

// newTestRouter builds a router with three handlers: a status operation
// that succeeds, a navigate operation that always fails, and a plugin
// that reports progress while it runs.
func newTestRouter(t *testing.T) *router.Router {
	t.Helper()

	rt := router.New(nil, nil)
	rt.Register(protocol.OpStatus, func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error) {
		return map[string]int{"activeSessions": 0}, nil
	})
	rt.Register(protocol.OpNavigate, func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error) {
		return nil, protocol.NewSessionNotFound("missing")
	})
	require.NoError(t, rt.RegisterPlugin("progress_probe", func(ctx context.Context, cctx protocol.CallContext, args json.RawMessage) (interface{}, error) {
		cctx.Progress(0.25, "starting")
		cctx.Progress(1, "done")
		return map[string]bool{"done": true}, nil
	}))
	return rt
}

func newTestServer(t *testing.T, cfg HTTPConfig) (*HTTPServer, *httptest.Server) {
	t.Helper()

	s := NewHTTPServer(cfg, newTestRouter(t), nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doRPC(t *testing.T, ts *httptest.Server, body string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeSingle(t *testing.T, resp *http.Response) rpcResponse {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func initializeSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get(headerSessionID)
	require.NotEmpty(t, sessionID)

	out := decodeSingle(t, resp)
	require.Nil(t, out.Error)
	return sessionID
}

// openStream connects an SSE channel for the session and feeds its
// non-empty lines into the returned channel until the stream ends.
func openStream(t *testing.T, ts *httptest.Server, sessionID string) (<-chan string, func()) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(headerSessionID, sessionID)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
	}()
	return lines, func() { _ = resp.Body.Close() }
}

func waitLine(t *testing.T, lines <-chan string, prefix string) string {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream ended while waiting for %q", prefix)
			}
			if strings.HasPrefix(line, prefix) {
				return strings.TrimPrefix(line, prefix)
			}
		case <-deadline:
			t.Fatalf("no line with prefix %q before deadline", prefix)
		}
	}
}

func waitStreamEnd(t *testing.T, lines <-chan string) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not end before deadline")
		}
	}
}

// decodeToolCall unpacks a tools/call response into the envelope the
// router produced plus the MCP isError flag.
func decodeToolCall(t *testing.T, out rpcResponse) (protocol.Envelope, bool) {
	t.Helper()

	result, ok := out.Result.(map[string]any)
	require.True(t, ok, "expected a tools/call result, got %+v", out)
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
	first, ok := content[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "text", first["type"])

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal([]byte(first["text"].(string)), &env))
	isErr, _ := result["isError"].(bool)
	return env, isErr
}

func TestHTTP_InitializeMintsSessionID(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(headerSessionID))

	out := decodeSingle(t, resp)
	require.Nil(t, out.Error)
	result := out.Result.(map[string]any)
	assert.Equal(t, protocolVersion, result["protocolVersion"])

	second := doRPC(t, ts, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{}}`, nil)
	defer func() { _ = second.Body.Close() }()
	assert.NotEqual(t, resp.Header.Get(headerSessionID), second.Header.Get(headerSessionID))
}

func TestHTTP_OperationBeforeInitializeRejected(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"browser_status"}}`

	out := decodeSingle(t, doRPC(t, ts, body, nil))
	require.NotNil(t, out.Error)
	assert.Equal(t, codeInvalidRequest, out.Error.Code)

	out = decodeSingle(t, doRPC(t, ts, body, map[string]string{headerSessionID: "made-up"}))
	require.NotNil(t, out.Error)
	assert.Equal(t, codeInvalidRequest, out.Error.Code)
}

func TestHTTP_ToolCallWrapsEnvelope(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})
	sessionID := initializeSession(t, ts)

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"browser_status"}}`,
		map[string]string{headerSessionID: sessionID})
	out := decodeSingle(t, resp)
	require.Nil(t, out.Error)
	assert.EqualValues(t, 7, out.ID)

	env, isErr := decodeToolCall(t, out)
	assert.False(t, isErr)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.TraceID)
}

func TestHTTP_ToolCallFailureSetsIsError(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})
	sessionID := initializeSession(t, ts)

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"browser_navigate","arguments":{"browserId":"x","url":"https://example.com"}}}`,
		map[string]string{headerSessionID: sessionID})
	env, isErr := decodeToolCall(t, decodeSingle(t, resp))
	assert.True(t, isErr)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeSessionNotFound, env.Error.Code)
}

func TestHTTP_UnknownToolNameStillEnvelopes(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})
	sessionID := initializeSession(t, ts)

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"no_such_operation"}}`,
		map[string]string{headerSessionID: sessionID})
	env, isErr := decodeToolCall(t, decodeSingle(t, resp))
	assert.True(t, isErr)
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeUnknownOperation, env.Error.Code)
}

func TestHTTP_ToolsListServesCatalog(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	out := decodeSingle(t, doRPC(t, ts, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, nil))
	require.Nil(t, out.Error)

	result := out.Result.(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 3)

	names := make([]string, 0, len(tools))
	for _, raw := range tools {
		names = append(names, raw.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "browser_status")
	assert.Contains(t, names, "progress_probe")
}

func TestHTTP_NotificationsInitializedAccepted(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHTTP_BatchMixedIdsAndNotifications(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	body := `[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"ping"},
		{"jsonrpc":"2.0","id":2,"method":"tools/list"}
	]`
	resp := doRPC(t, ts, body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	var out []rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2, "notifications must not produce response entries")
	assert.EqualValues(t, 1, out[0].ID)
	assert.EqualValues(t, 2, out[1].ID)
}

func TestHTTP_AllNotificationBatchYields202(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	body := `[
		{"jsonrpc":"2.0","method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"}
	]`
	resp := doRPC(t, ts, body, nil)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.EqualValues(t, 0, resp.ContentLength)
}

func TestHTTP_BatchInvalidEntryGetsErrorEntry(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	body := `[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		"garbage"
	]`
	resp := doRPC(t, ts, body, nil)
	defer func() { _ = resp.Body.Close() }()

	var out []rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Error)
	require.NotNil(t, out[1].Error)
	assert.Equal(t, codeInvalidRequest, out[1].Error.Code)
}

func TestHTTP_OneShotSSEEmitsSingleEvent(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","id":5,"method":"ping"}`,
		map[string]string{"Accept": "text/event-stream"})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	events := 0
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events++
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	assert.Equal(t, 1, events, "one-shot stream must emit exactly one event")

	var out rpcResponse
	require.NoError(t, json.Unmarshal([]byte(data), &out))
	assert.EqualValues(t, 5, out.ID)
}

func TestHTTP_StreamDeliversPublishedFrames(t *testing.T) {
	s, ts := newTestServer(t, HTTPConfig{})
	sessionID := initializeSession(t, ts)

	lines, stop := openStream(t, ts, sessionID)
	defer stop()

	require.Eventually(t, func() bool {
		return s.Registry().Channels(sessionID) == 1
	}, time.Second, 10*time.Millisecond)

	s.Registry().Publish(sessionID, map[string]string{"hello": "stream"})
	data := waitLine(t, lines, "data: ")
	assert.JSONEq(t, `{"hello":"stream"}`, data)
}

func TestHTTP_ProgressFanoutDuringCall(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})
	sessionID := initializeSession(t, ts)

	lines, stop := openStream(t, ts, sessionID)
	defer stop()

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"progress_probe","arguments":{},"_meta":{"progressToken":"tok-9"}}}`,
		map[string]string{headerSessionID: sessionID})
	env, isErr := decodeToolCall(t, decodeSingle(t, resp))
	assert.False(t, isErr)
	assert.True(t, env.Success)

	var first rpcNotification
	require.NoError(t, json.Unmarshal([]byte(waitLine(t, lines, "data: ")), &first))
	assert.Equal(t, "notifications/progress", first.Method)

	params := first.Params.(map[string]any)
	assert.Equal(t, "tok-9", params["progressToken"])
	assert.InDelta(t, 0.25, params["progress"].(float64), 0.001)

	var second rpcNotification
	require.NoError(t, json.Unmarshal([]byte(waitLine(t, lines, "data: ")), &second))
	assert.InDelta(t, 1.0, second.Params.(map[string]any)["progress"].(float64), 0.001)
}

func TestHTTP_ProgressSkippedWithoutToken(t *testing.T) {
	s, ts := newTestServer(t, HTTPConfig{})
	sessionID := initializeSession(t, ts)

	lines, stop := openStream(t, ts, sessionID)
	defer stop()

	require.Eventually(t, func() bool {
		return s.Registry().Channels(sessionID) == 1
	}, time.Second, 10*time.Millisecond)

	resp := doRPC(t, ts, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"progress_probe","arguments":{}}}`,
		map[string]string{headerSessionID: sessionID})
	env, _ := decodeToolCall(t, decodeSingle(t, resp))
	assert.True(t, env.Success)

	// Prove nothing was pushed by publishing a marker and seeing it first.
	s.Registry().Publish(sessionID, map[string]string{"marker": "end"})
	data := waitLine(t, lines, "data: ")
	assert.JSONEq(t, `{"marker":"end"}`, data)
}

func TestHTTP_DeleteEndsSessionAndClosesChannels(t *testing.T) {
	s, ts := newTestServer(t, HTTPConfig{})
	sessionID := initializeSession(t, ts)

	lines, stop := openStream(t, ts, sessionID)
	defer stop()

	require.Eventually(t, func() bool {
		return s.Registry().Channels(sessionID) == 1
	}, time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(headerSessionID, sessionID)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	waitStreamEnd(t, lines)
	assert.Equal(t, 0, s.Registry().Channels(sessionID))

	// The session id is no longer valid for operation calls.
	out := decodeSingle(t, doRPC(t, ts, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"browser_status"}}`,
		map[string]string{headerSessionID: sessionID}))
	require.NotNil(t, out.Error)
	assert.Equal(t, codeInvalidRequest, out.Error.Code)
}

func TestHTTP_DeleteUnknownSessionIs404(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(headerSessionID, "never-initialized")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_StreamRequiresKnownSession(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req.Header.Set(headerSessionID, "made-up")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_GetWithoutEventStreamAcceptRejected(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	resp, err := ts.Client().Get(ts.URL + "/mcp")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
}

func TestHTTP_HeartbeatsKeepIdleStreamAlive(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{HeartbeatInterval: 25 * time.Millisecond})
	sessionID := initializeSession(t, ts)

	lines, stop := openStream(t, ts, sessionID)
	defer stop()

	comment := waitLine(t, lines, ":")
	assert.Contains(t, comment, "heartbeat")
}

func TestHTTP_BearerAuth(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{AuthToken: "sekret"})

	body := `{"jsonrpc":"2.0","id":1,"method":"ping"}`

	resp := doRPC(t, ts, body, nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	resp = doRPC(t, ts, body, map[string]string{"Authorization": "Bearer wrong"})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRPC(t, ts, body, map[string]string{"Authorization": "Bearer sekret"})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_MethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/mcp", strings.NewReader("{}"))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTP_MalformedBodyIsParseError(t *testing.T) {
	_, ts := newTestServer(t, HTTPConfig{})

	resp := doRPC(t, ts, "{not json", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decodeSingle(t, resp)
	require.NotNil(t, out.Error)
	assert.Equal(t, codeParseError, out.Error.Code)
}

func TestHTTP_ListenAndServeStopsOnContextCancel(t *testing.T) {
	s := NewHTTPServer(HTTPConfig{Addr: "127.0.0.1:0"}, newTestRouter(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
