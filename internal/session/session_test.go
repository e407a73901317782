package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/danielpatrickdp/boardgate/internal/recognize"
)

// #region gated-recognizer
// gatedRecognizer parks the worker inside Recognize until released, which
// pins the frame buffer state for deterministic backpressure tests.
type gatedRecognizer struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedRecognizer) Recognize(ctx context.Context, image []byte) (recognize.Outcome, error) {
	g.started <- struct{}{}
	<-g.release
	return recognize.Outcome{}, nil
}
// #endregion gated-recognizer

// #region pacing-tests
func TestSubmitEnforcesFrameIntervalFloor(t *testing.T) {
	cfg := Config{FrameInterval: 200 * time.Millisecond, FrameBuffer: 8}
	auth := &fakeAuthorizer{allowed: map[string]bool{"alice/bus-12": true}}
	c := NewCoordinator(&fakeRecognizer{}, auth, fakeNames{}, &fakeAuditor{}, cfg)
	t.Cleanup(c.Close)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	c.now = clock.Now

	em := &recordingEmitter{}
	s, err := c.Start("bus-12", "conn-1", em)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 20 frames at 50ms spacing span 950ms; a 200ms floor lets
	// floor(950/200)+1 = 5 of them through.
	accepted := 0
	for i := 0; i < 20; i++ {
		ok, _, err := s.Submit("", []byte("alice"))
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if ok {
			accepted++
		}
		clock.Advance(50 * time.Millisecond)
	}
	if accepted != 5 {
		t.Errorf("expected 5 accepted frames, got %d", accepted)
	}

	st := s.Stats()
	if st.FramesAccepted != 5 || st.FramesDropped != 15 {
		t.Errorf("unexpected counters: %+v", st)
	}

	waitResults(t, em, 5)
	s.Stop()
	<-s.Done()
	if got := em.resultCount(); got != 5 {
		t.Errorf("expected 5 results, got %d", got)
	}
}

func TestSubmitDropsWhenBufferFull(t *testing.T) {
	cfg := Config{FrameInterval: 0, FrameBuffer: 2}
	rec := &gatedRecognizer{started: make(chan struct{}, 16), release: make(chan struct{})}
	c := NewCoordinator(rec, &fakeAuthorizer{}, fakeNames{}, &fakeAuditor{}, cfg)
	t.Cleanup(c.Close)

	em := &recordingEmitter{}
	s, err := c.Start("bus-12", "conn-1", em)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if ok, _, err := s.Submit("f1", nil); err != nil || !ok {
		t.Fatalf("expected f1 accepted, got ok=%v err=%v", ok, err)
	}
	<-rec.started // worker is now parked inside f1, buffer empty

	for _, id := range []string{"f2", "f3"} {
		if ok, _, err := s.Submit(id, nil); err != nil || !ok {
			t.Fatalf("expected %s accepted, got ok=%v err=%v", id, ok, err)
		}
	}
	for _, id := range []string{"f4", "f5"} {
		ok, _, err := s.Submit(id, nil)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if ok {
			t.Fatalf("expected %s dropped on full buffer", id)
		}
	}

	close(rec.release)
	waitResults(t, em, 3)
	s.Stop()
	<-s.Done()

	st := s.Stats()
	if st.FramesAccepted != 3 || st.FramesDropped != 2 {
		t.Errorf("unexpected counters: %+v", st)
	}
}

func TestSubmitAssignsFrameID(t *testing.T) {
	c, _ := testCoordinator(t, testConfig())
	em := &recordingEmitter{}
	s, err := c.Start("bus-12", "conn-1", em)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ok, id, err := s.Submit("", []byte("alice"))
	if err != nil || !ok {
		t.Fatalf("expected frame accepted, got ok=%v err=%v", ok, err)
	}
	if id == "" {
		t.Error("expected generated frame id")
	}
	ok, id, err = s.Submit("my-frame", []byte("alice"))
	if err != nil || !ok {
		t.Fatalf("expected frame accepted, got ok=%v err=%v", ok, err)
	}
	if id != "my-frame" {
		t.Errorf("expected client frame id to win, got %s", id)
	}
}
// #endregion pacing-tests

// #region duplicate-tests
func TestDuplicateDecisionsAuditedOncePerWindow(t *testing.T) {
	cfg := Config{FrameInterval: 0, FrameBuffer: 8, DuplicateWindow: 2 * time.Second}
	auth := &fakeAuthorizer{allowed: map[string]bool{"alice/bus-12": true}}
	auditor := &fakeAuditor{}
	c := NewCoordinator(&fakeRecognizer{}, auth, fakeNames{}, auditor, cfg)
	t.Cleanup(c.Close)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	c.now = clock.Now

	em := &recordingEmitter{}
	s, err := c.Start("bus-12", "conn-1", em)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	submit := func(image string, n int) {
		t.Helper()
		if ok, _, err := s.Submit(fmt.Sprintf("f%d", n), []byte(image)); err != nil || !ok {
			t.Fatalf("expected frame %d accepted, got ok=%v err=%v", n, ok, err)
		}
		waitResults(t, em, n)
	}

	submit("alice", 1) // first occurrence always audited
	clock.Advance(500 * time.Millisecond)
	submit("alice", 2) // identical within window: suppressed
	clock.Advance(500 * time.Millisecond)
	submit("alice", 3) // still within window
	if auditor.count() != 1 {
		t.Fatalf("expected 1 audit event inside window, got %d", auditor.count())
	}

	clock.Advance(1100 * time.Millisecond) // 2.1s since the audited event
	submit("alice", 4)
	if auditor.count() != 2 {
		t.Fatalf("expected re-audit after window, got %d", auditor.count())
	}

	clock.Advance(100 * time.Millisecond)
	submit("nobody", 5) // outcome change is always audited
	if auditor.count() != 3 {
		t.Fatalf("expected audit on outcome change, got %d", auditor.count())
	}
	clock.Advance(100 * time.Millisecond)
	submit("alice", 6) // change back counts as a new outcome
	if auditor.count() != 4 {
		t.Fatalf("expected audit on outcome flip, got %d", auditor.count())
	}

	results := em.resultList()
	if results[0].Duplicate || !results[1].Duplicate || !results[2].Duplicate || results[3].Duplicate {
		t.Errorf("unexpected duplicate flags: %v %v %v %v",
			results[0].Duplicate, results[1].Duplicate, results[2].Duplicate, results[3].Duplicate)
	}
	if st := s.Stats(); st.Duplicates != 2 {
		t.Errorf("expected 2 suppressed duplicates in stats, got %d", st.Duplicates)
	}

	s.Stop()
	<-s.Done()
}
// #endregion duplicate-tests
