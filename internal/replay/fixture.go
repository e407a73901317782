package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/boardgate/internal/gallery"
	"github.com/danielpatrickdp/boardgate/internal/recognize"
	"github.com/danielpatrickdp/boardgate/internal/vision"
)

// #region fixture-types

// Fixture is the top-level JSON structure for an offline replay fixture.
// Frames carry precomputed face embeddings so a run needs no detection
// sidecar.
type Fixture struct {
	Description string                 `json:"description"`
	Gallery     []FixtureIdentity      `json:"gallery"`
	Identities  []string               `json:"identities,omitempty"` // enrolled keys; defaults to the gallery keys
	Assignments []FixtureAssignment    `json:"assignments"`
	Config      FixtureRecognizeConfig `json:"config"`
	Frames      []FixtureFrame         `json:"frames"`
	Expected    []FixtureExpected      `json:"expected,omitempty"`
}

// FixtureIdentity is one gallery identity with its reference embeddings.
type FixtureIdentity struct {
	IdentityKey string      `json:"identity_key"`
	Vectors     [][]float32 `json:"vectors"`
}

// FixtureAssignment grants an identity access to one context.
type FixtureAssignment struct {
	IdentityKey string `json:"identity_key"`
	ContextID   string `json:"context_id"`
}

// FixtureRecognizeConfig mirrors recognize.Config with JSON tags. Zero
// values fall back to the production defaults.
type FixtureRecognizeConfig struct {
	DistanceThreshold float64 `json:"distance_threshold"`
	MinConfidence     float64 `json:"min_confidence"`
}

// FixtureRect mirrors vision.Rect with JSON tags.
type FixtureRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FixtureFace is one detected face: bounding box plus embedding.
type FixtureFace struct {
	Box       FixtureRect `json:"box"`
	Embedding []float32   `json:"embedding"`
}

// FixtureFrame is one recorded camera frame.
type FixtureFrame struct {
	FrameID   string        `json:"frame_id"`
	ContextID string        `json:"context_id"`
	Faces     []FixtureFace `json:"faces"`
}

// FixtureExpected captures the expected decision per frame.
type FixtureExpected struct {
	FrameID     string `json:"frame_id"`
	Authorized  bool   `json:"authorized"`
	IdentityKey string `json:"identity_key,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// GalleryEntries converts the fixture gallery to domain entries.
func (f *Fixture) GalleryEntries() []gallery.Entry {
	entries := make([]gallery.Entry, 0, len(f.Gallery))
	for _, g := range f.Gallery {
		vectors := make([][]float32, 0, len(g.Vectors))
		for _, v := range g.Vectors {
			vec := append([]float32(nil), v...)
			vision.Normalize(vec)
			vectors = append(vectors, vec)
		}
		entries = append(entries, gallery.Entry{IdentityKey: g.IdentityKey, Vectors: vectors})
	}
	return entries
}

// ReplayConfig converts the fixture's tables and thresholds to a run
// configuration.
func (f *Fixture) ReplayConfig() ReplayConfig {
	cfg := ReplayConfig{
		Recognize:  recognize.DefaultConfig(),
		Identities: map[string]bool{},
		Assigned:   map[string]bool{},
	}
	if f.Config.DistanceThreshold > 0 {
		cfg.Recognize.DistanceThreshold = f.Config.DistanceThreshold
	}
	if f.Config.MinConfidence > 0 {
		cfg.Recognize.MinConfidence = f.Config.MinConfidence
	}

	if len(f.Identities) > 0 {
		for _, key := range f.Identities {
			cfg.Identities[key] = true
		}
	} else {
		for _, g := range f.Gallery {
			cfg.Identities[g.IdentityKey] = true
		}
	}
	for _, a := range f.Assignments {
		cfg.Assigned[a.IdentityKey+"/"+a.ContextID] = true
	}
	return cfg
}

// ToFrame converts a fixture frame to a domain frame, normalizing the
// embeddings the way the live detection path does.
func (ff *FixtureFrame) ToFrame() Frame {
	faces := make([]vision.Face, 0, len(ff.Faces))
	for _, face := range ff.Faces {
		emb := append([]float32(nil), face.Embedding...)
		vision.Normalize(emb)
		faces = append(faces, vision.Face{
			Box:       vision.Rect{X: face.Box.X, Y: face.Box.Y, W: face.Box.W, H: face.Box.H},
			Embedding: emb,
		})
	}
	return Frame{FrameID: ff.FrameID, ContextID: ff.ContextID, Faces: faces}
}

// #endregion fixture-loader
