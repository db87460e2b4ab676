// Package protocol defines the transport-agnostic request/response contract
// shared by the router, the admission layer, and both transports: the call
// envelope, the closed set of operation names, the error taxonomy, and the
// per-call context (tenant, transport session, progress reporting).
package protocol

import "encoding/json"

// Call is one decoded operation request, independent of the transport that
// carried it.
type Call struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Diagnostics carries per-call measurements surfaced to the caller.
type Diagnostics struct {
	DurationMs float64 `json:"durationMs"`
}

// ErrorDetail is the wire form of a failed call's error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the normalized response shape every operation resolves to.
type Envelope struct {
	Success     bool         `json:"success"`
	Data        any          `json:"data,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
	Diagnostics Diagnostics  `json:"diagnostics"`
	TraceID     string       `json:"traceId"`
}

// OK builds a success envelope.
func OK(data any, durationMs float64, traceID string) Envelope {
	return Envelope{
		Success:     true,
		Data:        data,
		Diagnostics: Diagnostics{DurationMs: durationMs},
		TraceID:     traceID,
	}
}

// Fail builds a failure envelope from err. Taxonomy errors keep their code
// and message; anything else is reported as an internal error.
func Fail(err error, durationMs float64, traceID string) Envelope {
	detail := &ErrorDetail{Code: CodeInternal, Message: err.Error()}
	if e := AsError(err); e != nil {
		detail.Code = e.Code
		detail.Message = e.Message
	}
	return Envelope{
		Success:     false,
		Error:       detail,
		Diagnostics: Diagnostics{DurationMs: durationMs},
		TraceID:     traceID,
	}
}

// IsEnvelopeShaped reports whether a handler result already looks like an
// envelope (carries a "success" field). Such results are augmented by
// AugmentEnvelope instead of being wrapped a second time.
func IsEnvelopeShaped(result any) (map[string]any, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, ok := m["success"]; !ok {
		return nil, false
	}
	return m, true
}

// AugmentEnvelope completes an envelope-shaped result in place of
// re-wrapping it: a "data" field, "diagnostics.durationMs", and "traceId"
// are ensured without overwriting values the handler already set.
func AugmentEnvelope(result map[string]any, durationMs float64, traceID string) map[string]any {
	out := make(map[string]any, len(result)+2)
	for k, v := range result {
		out[k] = v
	}
	if _, ok := out["data"]; !ok {
		out["data"] = nil
	}
	diag, ok := out["diagnostics"].(map[string]any)
	if !ok {
		diag = make(map[string]any, 1)
	}
	if _, ok := diag["durationMs"]; !ok {
		diag["durationMs"] = durationMs
	}
	out["diagnostics"] = diag
	if _, ok := out["traceId"]; !ok {
		out["traceId"] = traceID
	}
	return out
}
