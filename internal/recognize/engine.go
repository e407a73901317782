package recognize

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/boardgate/internal/gallery"
	"github.com/danielpatrickdp/boardgate/internal/vision"
)

// #region collaborators
// Gallery supplies a fresh snapshot before every match.
type Gallery interface {
	EnsureFresh(ctx context.Context) (*gallery.Snapshot, error)
}

// Detector finds faces and their embeddings in a frame.
type Detector interface {
	DetectAndEmbed(ctx context.Context, image []byte) ([]vision.Face, error)
}
// #endregion collaborators

// #region engine
// Engine runs the per-frame pipeline: gallery freshness, face detection,
// primary-face selection, nearest-identity matching, acceptance.
type Engine struct {
	gallery  Gallery
	detector Detector
	config   Config
}

// NewEngine creates an Engine with the given acceptance policy.
func NewEngine(g Gallery, d Detector, config Config) *Engine {
	return &Engine{gallery: g, detector: d, config: config}
}
// #endregion engine

// #region recognize
// Recognize matches one frame. A nil error with Matched=false is a
// legitimate no-match (no face, empty gallery, or thresholds not met);
// a non-nil error means the pipeline itself failed and no decision may
// be derived from this frame.
func (e *Engine) Recognize(ctx context.Context, frame []byte) (Outcome, error) {
	snap, err := e.gallery.EnsureFresh(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("gallery not ready: %w", err)
	}

	faces, err := e.detector.DetectAndEmbed(ctx, frame)
	if err != nil {
		return Outcome{}, fmt.Errorf("detect faces: %w", err)
	}
	if len(faces) == 0 {
		return Outcome{}, nil
	}

	primary, _ := vision.PrimaryFace(faces)
	outcome := Outcome{FaceCount: len(faces)}

	match, found, err := snap.Nearest(ctx, primary.Embedding)
	if err != nil {
		return Outcome{}, fmt.Errorf("match embedding: %w", err)
	}
	if !found {
		return outcome, nil
	}

	outcome.Distance = match.Distance
	conf, ok := e.config.Accept(match.Distance)
	outcome.Confidence = conf
	if !ok {
		return outcome, nil
	}

	outcome.Matched = true
	outcome.IdentityKey = match.IdentityKey
	return outcome, nil
}
// #endregion recognize
