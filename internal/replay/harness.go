package replay

import (
	"context"

	"github.com/danielpatrickdp/boardgate/internal/authz"
	"github.com/danielpatrickdp/boardgate/internal/gallery"
	"github.com/danielpatrickdp/boardgate/internal/recognize"
	"github.com/danielpatrickdp/boardgate/internal/vision"
)

// #region types
// Frame is one recorded camera frame with precomputed face embeddings.
type Frame struct {
	FrameID   string
	ContextID string
	Faces     []vision.Face
}

// ReplayConfig bundles the matcher gates and the authorization tables for
// an offline run.
type ReplayConfig struct {
	Recognize  recognize.Config
	Identities map[string]bool // enrolled identity keys
	Assigned   map[string]bool // identityKey + "/" + contextID
}

// Result captures the decision for one replayed frame.
type Result struct {
	FrameID     string
	ContextID   string
	Matched     bool
	IdentityKey string
	Authorized  bool
	Reason      string
	Distance    float64
	Confidence  float64
	FaceCount   int
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalFrames int
	Granted     int
	Denied      int
	ByReason    map[string]int
}

// #endregion types

// #region map-lookups
// mapLookup serves the authorization resolver from in-memory tables, so
// a replay run exercises the same decision code as the live pipeline.
type mapLookup struct {
	identities map[string]bool
	assigned   map[string]bool
}

func (m mapLookup) IdentityExists(ctx context.Context, identityKey string) (bool, error) {
	return m.identities[identityKey], nil
}

func (m mapLookup) IsAssigned(ctx context.Context, identityKey, contextID string) (bool, error) {
	return m.assigned[identityKey+"/"+contextID], nil
}

// #endregion map-lookups

// #region replay
// Replay runs recorded frames through primary-face selection, gallery
// matching and authorization. Operates entirely in-memory.
func Replay(ctx context.Context, snap *gallery.Snapshot, frames []Frame, config ReplayConfig) []Result {
	lookup := mapLookup{identities: config.Identities, assigned: config.Assigned}
	resolver := authz.NewResolver(lookup, lookup)

	results := make([]Result, 0, len(frames))
	for _, f := range frames {
		res := Result{FrameID: f.FrameID, ContextID: f.ContextID, FaceCount: len(f.Faces)}

		if primary, ok := vision.PrimaryFace(f.Faces); ok {
			match, found, err := snap.Nearest(ctx, primary.Embedding)
			if err == nil && found {
				res.Distance = match.Distance
				conf, accepted := config.Recognize.Accept(match.Distance)
				res.Confidence = conf
				if accepted {
					res.Matched = true
					res.IdentityKey = match.IdentityKey
				}
			}
		}

		identity := ""
		if res.Matched {
			identity = res.IdentityKey
		}
		dec, err := resolver.Authorize(ctx, identity, f.ContextID)
		if err != nil {
			// Map-backed lookups cannot fail; keep the frame denied.
			dec = authz.Decision{Reason: authz.ReasonNoMatch}
		}
		res.Authorized = dec.Authorized
		res.Reason = string(dec.Reason)

		results = append(results, res)
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalFrames: len(results), ByReason: map[string]int{}}
	for _, r := range results {
		if r.Authorized {
			s.Granted++
			continue
		}
		s.Denied++
		if r.Reason != "" {
			s.ByReason[r.Reason]++
		}
	}
	if len(s.ByReason) == 0 {
		s.ByReason = nil
	}
	return s
}

// #endregion replay
