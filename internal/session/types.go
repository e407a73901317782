package session

import "time"

// #region result
// Result is the outbound payload for one processed frame.
type Result struct {
	SessionID   string  `json:"session_id"`
	ContextID   string  `json:"context_id"`
	FrameID     string  `json:"frame_id"`
	Matched     bool    `json:"matched"`
	IdentityKey string  `json:"identity_key,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
	Authorized  bool    `json:"authorized"`
	Reason      string  `json:"reason,omitempty"`
	Distance    float64 `json:"distance"`
	Confidence  float64 `json:"confidence"`
	FaceCount   int     `json:"face_count"`
	Duplicate   bool    `json:"duplicate,omitempty"` // same outcome as the previous frame, not re-audited
}
// #endregion result

// #region emitter
// Emitter receives the outbound events of one session, typically backed
// by a websocket connection. Calls arrive from a single goroutine in
// processing order.
type Emitter interface {
	EmitResult(Result)
	EmitError(sessionID, frameID, message string)
	EmitStopped(sessionID, reason string)
}
// #endregion emitter

// #region stop-reasons
const (
	StopClient   = "client"
	StopIdle     = "idle_timeout"
	StopShutdown = "shutdown"
)
// #endregion stop-reasons

// #region stats
// Stats are the live counters of one session.
type Stats struct {
	SessionID      string    `json:"session_id"`
	ContextID      string    `json:"context_id"`
	StartedAt      time.Time `json:"started_at"`
	LastFrameAt    time.Time `json:"last_frame_at"`
	FramesAccepted int       `json:"frames_accepted"`
	FramesDropped  int       `json:"frames_dropped"`
	Granted        int       `json:"granted"`
	Denied         int       `json:"denied"`
	Duplicates     int       `json:"duplicates"`
	Errors         int       `json:"errors"`
}
// #endregion stats

// #region config
// Config controls frame pacing and session lifecycle.
type Config struct {
	FrameInterval   time.Duration // floor between accepted frames; excess frames are dropped, never queued
	FrameBuffer     int           // queued frames per session
	IdleTimeout     time.Duration // stop a session after this much inactivity
	DuplicateWindow time.Duration // suppress re-auditing of identical consecutive decisions
}

// DefaultConfig returns production pacing: roughly five frames per second.
func DefaultConfig() Config {
	return Config{
		FrameInterval:   200 * time.Millisecond,
		FrameBuffer:     8,
		IdleTimeout:     120 * time.Second,
		DuplicateWindow: 2 * time.Second,
	}
}
// #endregion config
