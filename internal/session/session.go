package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// #region frame
// frame is one accepted camera frame awaiting processing.
type frame struct {
	id    string
	image []byte
}
// #endregion frame

// #region session-struct
// Session is one live recognition stream bound to a boarding context.
// Frames pass through a single worker, so results and audit events keep
// submission order.
type Session struct {
	ID        string
	ContextID string

	streamKey string
	cfg       Config
	now       func() time.Time
	emitter   Emitter
	coord     *Coordinator

	frames chan frame
	done   chan struct{} // closed when the worker has drained and exited

	mu         sync.Mutex
	stats      Stats
	lastAccept time.Time
	stopped    bool
	stopReason string

	lastOutcome   string    // duplicate-suppression key of the last decision
	lastAuditedAt time.Time // when that outcome last reached the audit log
}
// #endregion session-struct

// #region submit
// Submit offers one frame to the session. Frames arriving faster than the
// configured interval, or while the buffer is full, are dropped and
// counted, never queued. The returned frame ID identifies the frame in
// results and audit events; a client-supplied ID wins.
func (s *Session) Submit(frameID string, image []byte) (bool, string, error) {
	if frameID == "" {
		frameID = uuid.New().String()
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.coord.tracker.recordDroppedInactive()
		return false, "", fmt.Errorf("session %s already stopped", s.ID)
	}
	if !s.lastAccept.IsZero() && now.Sub(s.lastAccept) < s.cfg.FrameInterval {
		s.stats.FramesDropped++
		s.coord.tracker.recordDroppedRate()
		return false, frameID, nil
	}
	select {
	case s.frames <- frame{id: frameID, image: image}:
		s.lastAccept = now
		s.stats.FramesAccepted++
		s.stats.LastFrameAt = now
		s.coord.tracker.recordAccepted()
		return true, frameID, nil
	default:
		s.stats.FramesDropped++
		s.coord.tracker.recordDroppedBuffer()
		return false, frameID, nil
	}
}
// #endregion submit

// #region stop
// Stop ends the session. Frames already accepted still drain through the
// pipeline; anything submitted afterwards is rejected.
func (s *Session) Stop() {
	s.stop(StopClient)
}

func (s *Session) stop(reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.stopReason = reason
	accepted, dropped := s.stats.FramesAccepted, s.stats.FramesDropped
	close(s.frames)
	s.mu.Unlock()

	s.coord.remove(s)
	log.Printf("[SESSION] stopped id=%s context=%s reason=%s accepted=%d dropped=%d",
		s.ID, s.ContextID, reason, accepted, dropped)
}

// Done is closed once every accepted frame has drained and the stop
// event has been emitted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
// #endregion stop

// #region stats-access
// Stats returns a copy of the live counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) recordDecision(authorized, duplicate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if authorized {
		s.stats.Granted++
	} else {
		s.stats.Denied++
	}
	if duplicate {
		s.stats.Duplicates++
	}
}

func (s *Session) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Errors++
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.stats.LastFrameAt
	if last.IsZero() {
		last = s.stats.StartedAt
	}
	return now.Sub(last)
}
// #endregion stats-access

// #region duplicate-suppression
// shouldAudit reports whether a decision outcome needs an audit row. An
// outcome identical to the previous one is re-audited at most once per
// duplicate window; the first occurrence, and any change of outcome, is
// always written.
func (s *Session) shouldAudit(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.lastOutcome && now.Sub(s.lastAuditedAt) < s.cfg.DuplicateWindow {
		return false
	}
	s.lastOutcome = key
	s.lastAuditedAt = now
	return true
}
// #endregion duplicate-suppression
