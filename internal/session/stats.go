package session

import (
	"sync"
	"time"
)

// #region totals
// Totals are the coordinator-wide counters, accumulated across every
// session since startup. Unlike per-session Stats they survive session
// churn.
type Totals struct {
	StartedAt        time.Time `json:"started_at"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	SessionsStarted  int       `json:"sessions_started"`
	FramesSubmitted  int       `json:"frames_submitted"`
	FramesAccepted   int       `json:"frames_accepted"`
	DroppedRateLimit int       `json:"dropped_rate_limit"`
	DroppedBuffer    int       `json:"dropped_buffer"`
	DroppedInactive  int       `json:"dropped_inactive"`
	FacesDetected    int       `json:"faces_detected"`
	Matches          int       `json:"matches"`
	Granted          int       `json:"granted"`
	Denied           int       `json:"denied"`
	Duplicates       int       `json:"duplicates"`
	Errors           int       `json:"errors"`
	UniqueIdentities int       `json:"unique_identities"`
	RecognitionRate  float64   `json:"recognition_rate"` // matches per decision
}
// #endregion totals

// #region tracker
// Tracker accumulates Totals behind a mutex. One instance lives for the
// coordinator's lifetime.
type Tracker struct {
	mu        sync.Mutex
	startedAt time.Time
	totals    Totals
	seen      map[string]struct{} // matched identity keys
}

func newTracker(now time.Time) *Tracker {
	return &Tracker{startedAt: now, seen: map[string]struct{}{}}
}

func (t *Tracker) recordSessionStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.SessionsStarted++
}

func (t *Tracker) recordAccepted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.FramesSubmitted++
	t.totals.FramesAccepted++
}

func (t *Tracker) recordDroppedRate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.FramesSubmitted++
	t.totals.DroppedRateLimit++
}

func (t *Tracker) recordDroppedBuffer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.FramesSubmitted++
	t.totals.DroppedBuffer++
}

func (t *Tracker) recordDroppedInactive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.FramesSubmitted++
	t.totals.DroppedInactive++
}

func (t *Tracker) recordDecision(faceCount int, matched bool, identityKey string, authorized, duplicate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.FacesDetected += faceCount
	if matched {
		t.totals.Matches++
		t.seen[identityKey] = struct{}{}
	}
	if authorized {
		t.totals.Granted++
	} else {
		t.totals.Denied++
	}
	if duplicate {
		t.totals.Duplicates++
	}
}

func (t *Tracker) recordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.Errors++
}

// Snapshot returns the totals with the derived fields filled in.
func (t *Tracker) Snapshot(now time.Time) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.totals
	out.StartedAt = t.startedAt
	if up := now.Sub(t.startedAt); up > 0 {
		out.UptimeSeconds = up.Seconds()
	}
	out.UniqueIdentities = len(t.seen)
	if decisions := out.Granted + out.Denied; decisions > 0 {
		out.RecognitionRate = float64(out.Matches) / float64(decisions)
	}
	return out
}
// #endregion tracker
