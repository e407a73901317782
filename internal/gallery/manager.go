package gallery

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/danielpatrickdp/boardgate/internal/vision"
)

// #region manager-struct
// Manager owns the embedding store lifecycle: dirty tracking, serialized
// rebuilds, failure backoff, and the atomic snapshot swap. It is the only
// shared mutable resource between scanning sessions.
type Manager struct {
	source   Source
	embedder FaceEmbedder
	cache    *Cache // optional; nil disables persistence
	config   Config

	// mu serializes rebuilds and guards everything below. Holding it for
	// the rebuild duration is what makes concurrent EnsureFresh callers
	// wait for the in-flight rebuild instead of starting a second one.
	mu    sync.Mutex
	snap  *Snapshot
	state State

	readFile func(path string) ([]byte, error)
	now      func() time.Time
}
// #endregion manager-struct

// #region constructor
// NewManager creates a Manager. cache may be nil.
func NewManager(source Source, embedder FaceEmbedder, cache *Cache, config Config) *Manager {
	return &Manager{
		source:   source,
		embedder: embedder,
		cache:    cache,
		config:   config,
		readFile: os.ReadFile,
		now:      time.Now,
	}
}
// #endregion constructor

// #region notifications
// OnPhotosChanged is the enrollment-change notification for photo-set edits.
func (m *Manager) OnPhotosChanged(identityKey string) {
	log.Printf("[GALLERY] photos changed for %s, marking dirty", identityKey)
	m.MarkDirty()
}

// OnIdentityRemoved is the enrollment-change notification for un-enrollment.
func (m *Manager) OnIdentityRemoved(identityKey string) {
	log.Printf("[GALLERY] identity %s removed, marking dirty", identityKey)
	m.MarkDirty()
}

// MarkDirty flags the store for rebuild before the next recognition call.
// Initialized stays untouched so concurrent readers keep a consistent view.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	m.state.PendingRefresh = true
	m.mu.Unlock()
}
// #endregion notifications

// #region state
// State returns a copy of the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
// #endregion state

// #region ensure-fresh
// EnsureFresh returns a snapshot safe for matching, rebuilding first when
// the store is dirty or was never built. A caller arriving during a rebuild
// blocks until it finishes and then reuses its result.
func (m *Manager) EnsureFresh(ctx context.Context) (*Snapshot, error) {
	return m.ensureFresh(ctx, false)
}

// ForceRefresh marks the store dirty and rebuilds immediately, bypassing
// the failure backoff. Operator-triggered, e.g. after bulk enrollment.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	m.MarkDirty()
	_, err := m.ensureFresh(ctx, true)
	return err
}

func (m *Manager) ensureFresh(ctx context.Context, force bool) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Initialized && !m.state.PendingRefresh {
		return m.snap, nil
	}

	if !force && m.state.ConsecutiveFailures >= m.config.FailureCeiling {
		since := m.now().Sub(m.state.LastRefreshAttempt)
		if since < m.config.Backoff {
			return nil, fmt.Errorf("%w (retry in %s)", ErrRebuildThrottled,
				(m.config.Backoff - since).Round(time.Second))
		}
	}

	if err := m.rebuildLocked(ctx); err != nil {
		return nil, err
	}
	return m.snap, nil
}
// #endregion ensure-fresh

// #region rebuild
// Rebuild recomputes the store unconditionally, serialized with EnsureFresh.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuildLocked(ctx)
}

func (m *Manager) rebuildLocked(ctx context.Context) error {
	start := m.now()
	m.state.LastRefreshAttempt = start

	sets, err := m.source.ListPhotoSets(ctx)
	if err != nil {
		m.state.ConsecutiveFailures++
		return fmt.Errorf("list photo sets: %w", err)
	}

	var cached map[string]Entry
	if m.cache != nil {
		cached, err = m.cache.Load()
		if err != nil {
			// Cache is advisory: a load failure only costs recomputation.
			log.Printf("[GALLERY] cache load failed: %v", err)
			cached = nil
		}
	}

	entries := make([]Entry, 0, len(sets))
	keep := make(map[string]bool, len(sets))
	reused := 0
	for _, set := range sets {
		keep[set.IdentityKey] = true
		if prev, ok := cached[set.IdentityKey]; ok && prev.SourceVersion == set.PhotoVersion {
			entries = append(entries, prev)
			reused++
			continue
		}
		entry, err := m.embedPhotoSet(ctx, set)
		if err != nil {
			m.state.ConsecutiveFailures++
			return err
		}
		entries = append(entries, entry)
		if m.cache != nil {
			if err := m.cache.Put(entry); err != nil {
				log.Printf("[GALLERY] cache put %s: %v", set.IdentityKey, err)
			}
		}
	}

	snap, err := BuildSnapshot(ctx, entries)
	if err != nil {
		m.state.ConsecutiveFailures++
		return fmt.Errorf("build snapshot: %w", err)
	}

	if m.cache != nil {
		if err := m.cache.Prune(keep); err != nil {
			log.Printf("[GALLERY] cache prune: %v", err)
		}
	}

	m.snap = snap
	m.state.Initialized = true
	m.state.PendingRefresh = false
	m.state.ConsecutiveFailures = 0
	m.state.IdentityCount = snap.IdentityCount()
	m.state.VectorCount = snap.VectorCount()

	log.Printf("[GALLERY] rebuild ok: %d identities, %d vectors (%d reused), %dms",
		snap.IdentityCount(), snap.VectorCount(), reused, m.now().Sub(start).Milliseconds())
	return nil
}

// embedPhotoSet derives one identity's vectors from its photos. A photo
// with no detectable face is skipped; read or model errors abort.
func (m *Manager) embedPhotoSet(ctx context.Context, set PhotoSet) (Entry, error) {
	entry := Entry{IdentityKey: set.IdentityKey, SourceVersion: set.PhotoVersion}
	for _, path := range set.PhotoPaths {
		img, err := m.readFile(path)
		if err != nil {
			return Entry{}, fmt.Errorf("read photo %s: %w", path, err)
		}
		faces, err := m.embedder.DetectAndEmbed(ctx, img)
		if err != nil {
			return Entry{}, fmt.Errorf("embed photo %s: %w", path, err)
		}
		face, ok := vision.PrimaryFace(faces)
		if !ok {
			log.Printf("[GALLERY] no face in %s, skipping", path)
			continue
		}
		entry.Vectors = append(entry.Vectors, face.Embedding)
	}
	return entry, nil
}
// #endregion rebuild
