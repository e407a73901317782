package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/boardgate/internal/audit"
	"github.com/danielpatrickdp/boardgate/internal/authz"
	"github.com/danielpatrickdp/boardgate/internal/directory"
	"github.com/danielpatrickdp/boardgate/internal/recognize"
)

// #region collaborators
// Recognizer runs face recognition for one frame.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (recognize.Outcome, error)
}

// Authorizer resolves a recognition outcome into a boarding decision.
type Authorizer interface {
	Authorize(ctx context.Context, identityKey, contextID string) (authz.Decision, error)
}

// NameLookup resolves display names for matched identities.
type NameLookup interface {
	GetIdentity(ctx context.Context, identityKey string) (directory.Identity, error)
}

// Auditor persists decision and error events.
type Auditor interface {
	Append(ctx context.Context, e audit.Event) error
}
// #endregion collaborators

// #region coordinator-struct
// Coordinator owns all live recognition sessions: one worker per session,
// frame pacing, idle reaping and audit writes.
type Coordinator struct {
	recognizer Recognizer
	authorizer Authorizer
	names      NameLookup
	auditor    Auditor
	cfg        Config
	now        func() time.Time
	tracker    *Tracker

	mu       sync.Mutex
	sessions map[string]*Session // by session ID
	byStream map[string]*Session // by contextID/streamKey, for idempotent starts
	closed   bool

	janitorStop chan struct{}
}
// #endregion coordinator-struct

// #region constructor
// NewCoordinator wires the frame pipeline and, when an idle timeout is
// configured, starts the idle janitor.
func NewCoordinator(recognizer Recognizer, authorizer Authorizer, names NameLookup, auditor Auditor, cfg Config) *Coordinator {
	c := &Coordinator{
		recognizer:  recognizer,
		authorizer:  authorizer,
		names:       names,
		auditor:     auditor,
		cfg:         cfg,
		now:         time.Now,
		tracker:     newTracker(time.Now()),
		sessions:    map[string]*Session{},
		byStream:    map[string]*Session{},
		janitorStop: make(chan struct{}),
	}
	if cfg.IdleTimeout > 0 {
		go c.janitor()
	}
	return c
}
// #endregion constructor

// #region start
// Start begins the session for one (context, stream) pair. Starting an
// already-active pair returns the existing session unchanged.
func (c *Coordinator) Start(contextID, streamKey string, emitter Emitter) (*Session, error) {
	if contextID == "" {
		return nil, fmt.Errorf("context id must not be empty")
	}
	key := contextID + "/" + streamKey

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("coordinator closed")
	}
	if existing, ok := c.byStream[key]; ok {
		return existing, nil
	}

	buffer := c.cfg.FrameBuffer
	if buffer <= 0 {
		buffer = 1
	}
	s := &Session{
		ID:        uuid.New().String(),
		ContextID: contextID,
		streamKey: key,
		cfg:       c.cfg,
		now:       c.now,
		emitter:   emitter,
		coord:     c,
		frames:    make(chan frame, buffer),
		done:      make(chan struct{}),
	}
	s.stats = Stats{SessionID: s.ID, ContextID: contextID, StartedAt: c.now()}
	c.sessions[s.ID] = s
	c.byStream[key] = s
	c.tracker.recordSessionStarted()

	go c.worker(s)
	log.Printf("[SESSION] started id=%s context=%s", s.ID, contextID)
	return s, nil
}
// #endregion start

// #region lookup
// Get returns a live session by ID.
func (c *Coordinator) Get(sessionID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	return s, ok
}

// Stop ends a live session by ID.
func (c *Coordinator) Stop(sessionID string) error {
	s, ok := c.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	s.Stop()
	return nil
}

// Totals returns the coordinator-wide counters accumulated since startup.
// They cover stopped sessions too, unlike the per-session Sessions list.
func (c *Coordinator) Totals() Totals {
	return c.tracker.Snapshot(c.now())
}

// Sessions returns a stats snapshot of every live session, oldest first.
func (c *Coordinator) Sessions() []Stats {
	c.mu.Lock()
	list := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		list = append(list, s)
	}
	c.mu.Unlock()

	out := make([]Stats, 0, len(list))
	for _, s := range list {
		out = append(out, s.Stats())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func (c *Coordinator) remove(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, s.ID)
	delete(c.byStream, s.streamKey)
}
// #endregion lookup

// #region janitor
func (c *Coordinator) janitor() {
	interval := c.cfg.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.janitorStop:
			return
		case <-ticker.C:
			c.sweepIdle(c.now())
		}
	}
}

// sweepIdle stops sessions that have not seen a frame within the idle
// timeout.
func (c *Coordinator) sweepIdle(now time.Time) {
	c.mu.Lock()
	var idle []*Session
	for _, s := range c.sessions {
		if s.idleSince(now) >= c.cfg.IdleTimeout {
			idle = append(idle, s)
		}
	}
	c.mu.Unlock()

	for _, s := range idle {
		log.Printf("[SESSION] idle timeout id=%s context=%s", s.ID, s.ContextID)
		s.stop(StopIdle)
	}
}
// #endregion janitor

// #region close
// Close stops the janitor and every live session, waiting for accepted
// frames to drain.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	list := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		list = append(list, s)
	}
	c.mu.Unlock()

	if c.cfg.IdleTimeout > 0 {
		close(c.janitorStop)
	}
	for _, s := range list {
		s.stop(StopShutdown)
	}
	for _, s := range list {
		<-s.done
	}
}
// #endregion close

// #region worker
func (c *Coordinator) worker(s *Session) {
	for f := range s.frames {
		c.process(s, f)
	}
	s.mu.Lock()
	reason := s.stopReason
	s.mu.Unlock()
	s.emitter.EmitStopped(s.ID, reason)
	close(s.done)
}
// #endregion worker

// #region process
// process runs one frame through recognize, authorize, audit and emit.
// Audit failures are logged and never block the stream.
func (c *Coordinator) process(s *Session, f frame) {
	ctx := context.Background()

	out, err := c.recognizer.Recognize(ctx, f.image)
	if err != nil {
		c.failFrame(s, f, fmt.Sprintf("recognition failed: %v", err))
		return
	}

	identity := ""
	if out.Matched {
		identity = out.IdentityKey
	}
	dec, err := c.authorizer.Authorize(ctx, identity, s.ContextID)
	if err != nil {
		c.failFrame(s, f, fmt.Sprintf("authorization failed: %v", err))
		return
	}

	res := Result{
		SessionID:   s.ID,
		ContextID:   s.ContextID,
		FrameID:     f.id,
		Matched:     out.Matched,
		IdentityKey: out.IdentityKey,
		Authorized:  dec.Authorized,
		Reason:      string(dec.Reason),
		Distance:    out.Distance,
		Confidence:  out.Confidence,
		FaceCount:   out.FaceCount,
	}
	if out.Matched && c.names != nil {
		if ident, err := c.names.GetIdentity(ctx, out.IdentityKey); err == nil {
			res.DisplayName = ident.DisplayName
		} else {
			log.Printf("[SESSION] display name lookup failed for %s: %v", out.IdentityKey, err)
		}
	}

	dupKey := fmt.Sprintf("%v|%s|%v|%s", out.Matched, out.IdentityKey, dec.Authorized, dec.Reason)
	if s.shouldAudit(dupKey, c.now()) {
		evt := audit.Event{
			Kind:        audit.KindDecision,
			SessionID:   s.ID,
			ContextID:   s.ContextID,
			FrameID:     f.id,
			IdentityKey: out.IdentityKey,
			Authorized:  dec.Authorized,
			Reason:      string(dec.Reason),
			Distance:    out.Distance,
			Confidence:  out.Confidence,
			FaceCount:   out.FaceCount,
		}
		if err := c.auditor.Append(ctx, evt); err != nil {
			log.Printf("[SESSION] audit append failed: %v", err)
		}
	} else {
		res.Duplicate = true
	}

	s.recordDecision(dec.Authorized, res.Duplicate)
	c.tracker.recordDecision(out.FaceCount, out.Matched, out.IdentityKey, dec.Authorized, res.Duplicate)
	s.emitter.EmitResult(res)
}

func (c *Coordinator) failFrame(s *Session, f frame, msg string) {
	s.recordError()
	c.tracker.recordError()
	evt := audit.Event{
		Kind:      audit.KindError,
		SessionID: s.ID,
		ContextID: s.ContextID,
		FrameID:   f.id,
		Error:     msg,
	}
	if err := c.auditor.Append(context.Background(), evt); err != nil {
		log.Printf("[SESSION] audit append failed: %v", err)
	}
	s.emitter.EmitError(s.ID, f.id, msg)
}
// #endregion process
