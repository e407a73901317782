package replay

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// #region helpers
func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

const sampleFixture = `{
  "description": "two riders, one assigned",
  "gallery": [
    {"identity_key": "alice", "vectors": [[2, 0, 0]]},
    {"identity_key": "bob", "vectors": [[0, 1, 0]]}
  ],
  "assignments": [
    {"identity_key": "alice", "context_id": "bus-12"}
  ],
  "frames": [
    {
      "frame_id": "f1",
      "context_id": "bus-12",
      "faces": [
        {"box": {"x": 10, "y": 10, "w": 100, "h": 100}, "embedding": [0.8, 0.6, 0]}
      ]
    },
    {"frame_id": "f2", "context_id": "bus-12", "faces": []}
  ],
  "expected": [
    {"frame_id": "f1", "authorized": true, "identity_key": "alice"},
    {"frame_id": "f2", "authorized": false, "reason": "no_match"}
  ]
}`
// #endregion helpers

// #region fixture-tests
func TestLoadFixture(t *testing.T) {
	path := writeFixture(t, sampleFixture)
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}
	if f.Description != "two riders, one assigned" {
		t.Errorf("unexpected description: %q", f.Description)
	}
	if len(f.Gallery) != 2 || len(f.Frames) != 2 || len(f.Expected) != 2 {
		t.Errorf("unexpected fixture shape: %d gallery, %d frames, %d expected",
			len(f.Gallery), len(f.Frames), len(f.Expected))
	}
}

func TestLoadFixtureMissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected missing file to fail")
	}
}

func TestLoadFixtureBadJSON(t *testing.T) {
	path := writeFixture(t, "{not json")
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGalleryEntriesNormalized(t *testing.T) {
	path := writeFixture(t, sampleFixture)
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}

	entries := f.GalleryEntries()
	if entries[0].IdentityKey != "alice" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	// The (2, 0, 0) reference vector is stored unit-length.
	v := entries[0].Vectors[0]
	if math.Abs(float64(v[0])-1) > 1e-6 || v[1] != 0 || v[2] != 0 {
		t.Errorf("expected normalized vector, got %v", v)
	}
}

func TestReplayConfigDefaultsAndTables(t *testing.T) {
	path := writeFixture(t, sampleFixture)
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}

	cfg := f.ReplayConfig()
	if cfg.Recognize.DistanceThreshold != 0.68 || cfg.Recognize.MinConfidence != 60 {
		t.Errorf("expected default thresholds, got %+v", cfg.Recognize)
	}
	// Identities default to the gallery keys.
	if !cfg.Identities["alice"] || !cfg.Identities["bob"] {
		t.Errorf("expected gallery keys enrolled, got %v", cfg.Identities)
	}
	if !cfg.Assigned["alice/bus-12"] {
		t.Errorf("expected alice assigned to bus-12, got %v", cfg.Assigned)
	}
}

func TestReplayConfigOverrides(t *testing.T) {
	f := &Fixture{
		Gallery:    []FixtureIdentity{{IdentityKey: "alice"}},
		Identities: []string{"carol"},
		Config:     FixtureRecognizeConfig{DistanceThreshold: 0.5, MinConfidence: 80},
	}
	cfg := f.ReplayConfig()
	if cfg.Recognize.DistanceThreshold != 0.5 || cfg.Recognize.MinConfidence != 80 {
		t.Errorf("expected overridden thresholds, got %+v", cfg.Recognize)
	}
	if cfg.Identities["alice"] || !cfg.Identities["carol"] {
		t.Errorf("expected explicit identity list to win, got %v", cfg.Identities)
	}
}

func TestFixtureFrameToFrame(t *testing.T) {
	ff := FixtureFrame{
		FrameID:   "f1",
		ContextID: "bus-12",
		Faces: []FixtureFace{
			{Box: FixtureRect{X: 1, Y: 2, W: 3, H: 4}, Embedding: []float32{0, 2, 0}},
		},
	}
	frame := ff.ToFrame()
	if frame.FrameID != "f1" || frame.ContextID != "bus-12" {
		t.Errorf("unexpected frame fields: %+v", frame)
	}
	faceOut := frame.Faces[0]
	if faceOut.Box.X != 1 || faceOut.Box.H != 4 {
		t.Errorf("unexpected box: %+v", faceOut.Box)
	}
	if math.Abs(float64(faceOut.Embedding[1])-1) > 1e-6 {
		t.Errorf("expected normalized embedding, got %v", faceOut.Embedding)
	}
}

func TestFixtureEndToEnd(t *testing.T) {
	path := writeFixture(t, sampleFixture)
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}

	snap := buildSnapshot(t, f.GalleryEntries())
	frames := make([]Frame, 0, len(f.Frames))
	for _, ff := range f.Frames {
		frames = append(frames, ff.ToFrame())
	}

	results := Replay(context.Background(), snap, frames, f.ReplayConfig())
	if len(results) != len(f.Expected) {
		t.Fatalf("expected %d results, got %d", len(f.Expected), len(results))
	}
	for i, want := range f.Expected {
		got := results[i]
		if got.FrameID != want.FrameID || got.Authorized != want.Authorized {
			t.Errorf("frame %s: expected authorized=%v, got %+v", want.FrameID, want.Authorized, got)
		}
		if want.IdentityKey != "" && got.IdentityKey != want.IdentityKey {
			t.Errorf("frame %s: expected identity %s, got %s", want.FrameID, want.IdentityKey, got.IdentityKey)
		}
		if want.Reason != "" && got.Reason != want.Reason {
			t.Errorf("frame %s: expected reason %s, got %s", want.FrameID, want.Reason, got.Reason)
		}
	}
}
// #endregion fixture-tests
