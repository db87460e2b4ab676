package transport

import (
	"encoding/json"
	"sync"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
)

// Streaming channel states.
const (
	ChannelOpen   = "OPEN"
	ChannelClosed = "CLOSED"
)

// channelBuffer is the per-channel event buffer. Publishing never
// blocks: a slow consumer loses events beyond its buffer rather than
// stalling the call that produced them.
const channelBuffer = 64

// Channel is one server-push stream registered under a transport
// session id. Frames arrive on C as marshaled JSON. The channel moves
// from OPEN to CLOSED exactly once; C is closed on that transition.
type Channel struct {
	SessionID string
	C         chan []byte

	mu    sync.Mutex
	state string
}

// State returns the channel's lifecycle state.
func (c *Channel) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// send delivers a frame without blocking. Returns false when the
// channel is closed or its buffer is full.
func (c *Channel) send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ChannelOpen {
		return false
	}
	select {
	case c.C <- data:
		return true
	default:
		return false
	}
}

// close transitions the channel to CLOSED. Returns false when it
// already was.
func (c *Channel) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ChannelClosed {
		return false
	}
	c.state = ChannelClosed
	close(c.C)
	return true
}

// ChannelRegistry tracks the streaming channels of every transport
// session. Progress notifications for a session fan out to all of its
// registered channels.
type ChannelRegistry struct {
	mu       sync.Mutex
	sessions map[string]map[*Channel]struct{}
	logger   logging.Logger
}

// NewChannelRegistry creates an empty registry.
func NewChannelRegistry(logger logging.Logger) *ChannelRegistry {
	return &ChannelRegistry{
		sessions: make(map[string]map[*Channel]struct{}),
		logger:   logging.OrNop(logger),
	}
}

// Open registers a new OPEN channel under the session id.
func (r *ChannelRegistry) Open(sessionID string) *Channel {
	ch := &Channel{
		SessionID: sessionID,
		C:         make(chan []byte, channelBuffer),
		state:     ChannelOpen,
	}

	r.mu.Lock()
	set, ok := r.sessions[sessionID]
	if !ok {
		set = make(map[*Channel]struct{})
		r.sessions[sessionID] = set
	}
	set[ch] = struct{}{}
	r.mu.Unlock()

	r.logger.Debugf("Streaming channel opened for session %s", sessionID)
	return ch
}

// Close transitions the channel to CLOSED and deregisters it. Closing
// the last channel of a session removes the session's entry entirely.
// Safe to call more than once.
func (r *ChannelRegistry) Close(ch *Channel) {
	if ch == nil || !ch.close() {
		return
	}

	r.mu.Lock()
	if set, ok := r.sessions[ch.SessionID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(r.sessions, ch.SessionID)
		}
	}
	r.mu.Unlock()

	r.logger.Debugf("Streaming channel closed for session %s", ch.SessionID)
}

// CloseSession closes every channel registered under the session id
// and returns how many were closed.
func (r *ChannelRegistry) CloseSession(sessionID string) int {
	r.mu.Lock()
	channels := make([]*Channel, 0, len(r.sessions[sessionID]))
	for ch := range r.sessions[sessionID] {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		r.Close(ch)
	}
	return len(channels)
}

// Publish marshals the payload and delivers it to every channel of the
// session. A channel with a full buffer skips the frame. Returns the
// number of channels that accepted it.
func (r *ChannelRegistry) Publish(sessionID string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warnf("Dropping unmarshalable channel payload for session %s: %v", sessionID, err)
		return 0
	}

	r.mu.Lock()
	channels := make([]*Channel, 0, len(r.sessions[sessionID]))
	for ch := range r.sessions[sessionID] {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	delivered := 0
	for _, ch := range channels {
		if ch.send(data) {
			delivered++
		}
	}
	return delivered
}

// Channels returns how many channels are registered under the session.
func (r *ChannelRegistry) Channels(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID])
}

// Sessions returns how many sessions have at least one open channel.
func (r *ChannelRegistry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
