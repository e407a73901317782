package replay

import (
	"context"
	"math"
	"testing"

	"github.com/danielpatrickdp/boardgate/internal/authz"
	"github.com/danielpatrickdp/boardgate/internal/gallery"
	"github.com/danielpatrickdp/boardgate/internal/recognize"
	"github.com/danielpatrickdp/boardgate/internal/vision"
)

// #region helpers
func buildSnapshot(t *testing.T, entries []gallery.Entry) *gallery.Snapshot {
	t.Helper()
	snap, err := gallery.BuildSnapshot(context.Background(), entries)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}
	return snap
}

func testGallery(t *testing.T) *gallery.Snapshot {
	t.Helper()
	return buildSnapshot(t, []gallery.Entry{
		{IdentityKey: "alice", Vectors: [][]float32{{1, 0, 0}}},
		{IdentityKey: "bob", Vectors: [][]float32{{0, 1, 0}}},
	})
}

func face(x, y, w, h int, emb ...float32) vision.Face {
	return vision.Face{Box: vision.Rect{X: x, Y: y, W: w, H: h}, Embedding: emb}
}

func testReplayConfig() ReplayConfig {
	return ReplayConfig{
		Recognize:  recognize.DefaultConfig(),
		Identities: map[string]bool{"alice": true, "bob": true},
		Assigned:   map[string]bool{"alice/bus-12": true},
	}
}
// #endregion helpers

// #region replay-tests
func TestReplayGrantAndDenyFlow(t *testing.T) {
	snap := testGallery(t)
	frames := []Frame{
		{FrameID: "f1", ContextID: "bus-12", Faces: []vision.Face{face(10, 10, 100, 100, 0.8, 0.6, 0)}},
		{FrameID: "f2", ContextID: "bus-12", Faces: []vision.Face{face(10, 10, 100, 100, 0, 1, 0)}},
		{FrameID: "f3", ContextID: "bus-12"},
		{FrameID: "f4", ContextID: "bus-12", Faces: []vision.Face{face(10, 10, 100, 100, 0, 0, 1)}},
	}

	results := Replay(context.Background(), snap, frames, testReplayConfig())
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	if !results[0].Authorized || results[0].IdentityKey != "alice" || results[0].Reason != "" {
		t.Errorf("expected alice granted, got %+v", results[0])
	}
	if math.Abs(results[0].Distance-0.2) > 1e-5 {
		t.Errorf("expected distance 0.2, got %v", results[0].Distance)
	}

	if results[1].Authorized || results[1].IdentityKey != "bob" || results[1].Reason != string(authz.ReasonNotAssigned) {
		t.Errorf("expected bob not_assigned, got %+v", results[1])
	}

	if results[2].Authorized || results[2].Matched || results[2].Reason != string(authz.ReasonNoMatch) {
		t.Errorf("expected faceless frame denied no_match, got %+v", results[2])
	}
	if results[2].FaceCount != 0 {
		t.Errorf("expected face count 0, got %d", results[2].FaceCount)
	}

	// A face far from everyone records the nearest distance but no match.
	if results[3].Matched || results[3].Reason != string(authz.ReasonNoMatch) {
		t.Errorf("expected distant face denied no_match, got %+v", results[3])
	}
	if math.Abs(results[3].Distance-1.0) > 1e-5 {
		t.Errorf("expected nearest distance 1.0, got %v", results[3].Distance)
	}

	sum := Summarize(results)
	if sum.TotalFrames != 4 || sum.Granted != 1 || sum.Denied != 3 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.ByReason[string(authz.ReasonNoMatch)] != 2 || sum.ByReason[string(authz.ReasonNotAssigned)] != 1 {
		t.Errorf("unexpected reason breakdown: %v", sum.ByReason)
	}
}

func TestReplayUnknownIdentity(t *testing.T) {
	snap := buildSnapshot(t, []gallery.Entry{
		{IdentityKey: "ghost", Vectors: [][]float32{{0, 1, 0}}},
	})
	config := ReplayConfig{
		Recognize:  recognize.DefaultConfig(),
		Identities: map[string]bool{"alice": true}, // ghost matches in the gallery but is not enrolled
		Assigned:   map[string]bool{},
	}
	frames := []Frame{
		{FrameID: "f1", ContextID: "bus-12", Faces: []vision.Face{face(0, 0, 50, 50, 0, 1, 0)}},
	}

	results := Replay(context.Background(), snap, frames, config)
	if !results[0].Matched || results[0].IdentityKey != "ghost" {
		t.Fatalf("expected ghost match, got %+v", results[0])
	}
	if results[0].Authorized || results[0].Reason != string(authz.ReasonUnknownIdentity) {
		t.Errorf("expected unknown_identity denial, got %+v", results[0])
	}
}

func TestReplayPrimaryFaceSelection(t *testing.T) {
	snap := testGallery(t)
	frames := []Frame{
		{FrameID: "f1", ContextID: "bus-12", Faces: []vision.Face{
			face(0, 0, 40, 40, 1, 0, 0),     // small face near alice
			face(50, 50, 200, 200, 0, 1, 0), // large face near bob wins
		}},
	}

	results := Replay(context.Background(), snap, frames, testReplayConfig())
	if results[0].IdentityKey != "bob" {
		t.Errorf("expected largest face to drive the match, got %+v", results[0])
	}
	if results[0].FaceCount != 2 {
		t.Errorf("expected face count 2, got %d", results[0].FaceCount)
	}
}

func TestReplayEmptyGallery(t *testing.T) {
	snap := buildSnapshot(t, nil)
	frames := []Frame{
		{FrameID: "f1", ContextID: "bus-12", Faces: []vision.Face{face(0, 0, 50, 50, 1, 0, 0)}},
	}

	results := Replay(context.Background(), snap, frames, testReplayConfig())
	if results[0].Matched || results[0].Authorized {
		t.Errorf("expected no match against empty gallery, got %+v", results[0])
	}
	if results[0].Reason != string(authz.ReasonNoMatch) {
		t.Errorf("expected no_match reason, got %q", results[0].Reason)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil)
	if sum.TotalFrames != 0 || sum.Granted != 0 || sum.Denied != 0 || sum.ByReason != nil {
		t.Errorf("unexpected empty summary: %+v", sum)
	}
}
// #endregion replay-tests
