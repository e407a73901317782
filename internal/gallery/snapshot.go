package gallery

import (
	"context"
	"fmt"
	"time"

	"github.com/philippgille/chromem-go"
)

// #region snapshot
// Snapshot is one immutable build of the embedding store. Matching reads
// never see a partial build: the manager swaps the whole snapshot on
// successful rebuild and old snapshots stay valid for in-flight readers.
type Snapshot struct {
	col           *chromem.Collection
	identityCount int
	vectorCount   int
	builtAt       time.Time
}
// #endregion snapshot

// #region build
// BuildSnapshot indexes entries into a fresh in-memory collection.
// Entries without vectors contribute nothing.
func BuildSnapshot(ctx context.Context, entries []Entry) (*Snapshot, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("gallery", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	snap := &Snapshot{col: col, builtAt: time.Now().UTC()}
	for _, e := range entries {
		if len(e.Vectors) == 0 {
			continue
		}
		snap.identityCount++
		for i, vec := range e.Vectors {
			doc := chromem.Document{
				ID:        fmt.Sprintf("%s#%d", e.IdentityKey, i),
				Metadata:  map[string]string{"identity": e.IdentityKey},
				Embedding: vec,
				Content:   e.IdentityKey,
			}
			if err := col.AddDocument(ctx, doc); err != nil {
				return nil, fmt.Errorf("index %s: %w", e.IdentityKey, err)
			}
			snap.vectorCount++
		}
	}
	return snap, nil
}
// #endregion build

// #region nearest
// Nearest returns the closest identity to the probe embedding, or ok=false
// when the snapshot is empty. The probe must be L2-normalized.
func (s *Snapshot) Nearest(ctx context.Context, probe []float32) (Match, bool, error) {
	if s.vectorCount == 0 {
		return Match{}, false, nil
	}
	results, err := s.col.QueryEmbedding(ctx, probe, 1, nil, nil)
	if err != nil {
		return Match{}, false, fmt.Errorf("query snapshot: %w", err)
	}
	if len(results) == 0 {
		return Match{}, false, nil
	}
	r := results[0]
	return Match{
		IdentityKey: r.Metadata["identity"],
		Distance:    1 - float64(r.Similarity),
	}, true, nil
}
// #endregion nearest

// #region accessors
// IdentityCount reports identities with at least one indexed vector.
func (s *Snapshot) IdentityCount() int {
	return s.identityCount
}

// VectorCount reports the total indexed vectors.
func (s *Snapshot) VectorCount() int {
	return s.vectorCount
}
// #endregion accessors
