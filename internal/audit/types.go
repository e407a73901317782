package audit

import "time"

// #region kinds
const (
	KindDecision = "decision"
	KindError    = "error"
)
// #endregion kinds

// #region event
// Event is a single row in the audit_log table. Decision events capture one
// boarding decision; error events capture a pipeline failure for a frame
// that produced no decision.
type Event struct {
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"`
	SessionID   string    `json:"session_id"`
	ContextID   string    `json:"context_id"`
	FrameID     string    `json:"frame_id,omitempty"`
	IdentityKey string    `json:"identity_key,omitempty"`
	Authorized  bool      `json:"authorized"`
	Reason      string    `json:"reason,omitempty"`
	Distance    float64   `json:"distance"`
	Confidence  float64   `json:"confidence"`
	FaceCount   int       `json:"face_count"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
// #endregion event

// #region summary
// Summary aggregates one day of audit events, optionally for one context.
type Summary struct {
	Day              string         `json:"day"`
	ContextID        string         `json:"context_id,omitempty"`
	Total            int            `json:"total"`
	Granted          int            `json:"granted"`
	Denied           int            `json:"denied"`
	Errors           int            `json:"errors"`
	DeniedByReason   map[string]int `json:"denied_by_reason,omitempty"`
	UniqueIdentities int            `json:"unique_identities"`
}
// #endregion summary
