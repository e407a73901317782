package gallery

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/boardgate/internal/vision"
)

// #region entry-types
// Entry is the derived embedding set for one enrolled identity: one vector
// per usable enrollment photo. Valid for matching only while SourceVersion
// equals the identity's current photo version.
type Entry struct {
	IdentityKey   string
	SourceVersion int64
	Vectors       [][]float32
}

// Match is the nearest gallery identity for a probe embedding.
type Match struct {
	IdentityKey string
	Distance    float64 // cosine distance over unit vectors, 0 = identical
}

// PhotoSet is one identity's current enrollment photos.
type PhotoSet struct {
	IdentityKey  string
	PhotoVersion int64
	PhotoPaths   []string
}
// #endregion entry-types

// #region lifecycle-state
// State is a point-in-time view of the gallery lifecycle.
type State struct {
	Initialized         bool      `json:"initialized"`
	PendingRefresh      bool      `json:"pending_refresh"`
	IdentityCount       int       `json:"identity_count"`
	VectorCount         int       `json:"vector_count"`
	LastRefreshAttempt  time.Time `json:"last_refresh_attempt"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}
// #endregion lifecycle-state

// #region collaborators
// Source lists enrollment photo sets. Implemented by the directory store.
type Source interface {
	ListPhotoSets(ctx context.Context) ([]PhotoSet, error)
}

// FaceEmbedder detects faces in an image and returns their embeddings.
// Implemented by the vision client.
type FaceEmbedder interface {
	DetectAndEmbed(ctx context.Context, image []byte) ([]vision.Face, error)
}
// #endregion collaborators

// #region config
// Config bounds rebuild retry behavior.
type Config struct {
	FailureCeiling int           // consecutive failures before attempts are throttled
	Backoff        time.Duration // minimum spacing of throttled attempts
}

// DefaultConfig returns the standard retry policy.
func DefaultConfig() Config {
	return Config{
		FailureCeiling: 3,
		Backoff:        60 * time.Second,
	}
}
// #endregion config

// #region errors
// ErrRebuildThrottled marks an automatic rebuild refused inside the backoff
// window. A forced refresh always bypasses it.
var ErrRebuildThrottled = errors.New("gallery rebuild throttled after repeated failures")
// #endregion errors
