package protocol

// ProgressEvent is one out-of-band progress notification pushed to the
// streaming channels of a transport session while a call is executing.
type ProgressEvent struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Message       string  `json:"message,omitempty"`
}

// ProgressFunc delivers a progress event. Implementations must not block.
type ProgressFunc func(ProgressEvent)

// CallContext carries the transport-derived facts about one call: the
// resolved tenant, the client session id, and the progress reporting hook.
// The zero value is valid and reports nothing.
type CallContext struct {
	// TeamID is the resolved tenant id, empty when the caller supplied none.
	TeamID string

	// SessionID identifies the transport session the call arrived on.
	SessionID string

	// ProgressToken is the caller-supplied token to echo in progress
	// events, nil when the caller did not ask for progress.
	ProgressToken any

	// Notify pushes progress events to the session's streaming channels.
	Notify ProgressFunc
}

// Progress reports call progress in [0, 1]. It is a no-op when the caller
// did not request progress or the transport has no push channel.
func (c CallContext) Progress(progress float64, message string) {
	if c.Notify == nil || c.ProgressToken == nil {
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	c.Notify(ProgressEvent{
		ProgressToken: c.ProgressToken,
		Progress:      progress,
		Message:       message,
	})
}
