package directory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// #region helpers
func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type recordingNotifier struct {
	photosChanged []string
	removed       []string
}

func (r *recordingNotifier) OnPhotosChanged(identityKey string) {
	r.photosChanged = append(r.photosChanged, identityKey)
}

func (r *recordingNotifier) OnIdentityRemoved(identityKey string) {
	r.removed = append(r.removed, identityKey)
}
// #endregion helpers

// #region identity-tests
func TestAddAndGetIdentity(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	added, err := store.AddIdentity(ctx, "alice", "Alice A.")
	if err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	if added.IdentityKey != "alice" {
		t.Fatalf("expected key alice, got %s", added.IdentityKey)
	}

	got, err := store.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("GetIdentity failed: %v", err)
	}
	if got.DisplayName != "Alice A." {
		t.Errorf("expected display name Alice A., got %s", got.DisplayName)
	}
	if got.PhotoVersion != 0 {
		t.Errorf("expected photo version 0, got %d", got.PhotoVersion)
	}
	if got.PhotoCount != 0 {
		t.Errorf("expected photo count 0, got %d", got.PhotoCount)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestAddIdentityDuplicate(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.AddIdentity(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	_, err := store.AddIdentity(ctx, "alice", "Other Alice")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists for duplicate identity, got %v", err)
	}
}

func TestAddIdentityEmptyKey(t *testing.T) {
	store := tempStore(t)
	if _, err := store.AddIdentity(context.Background(), "", "Nobody"); err == nil {
		t.Fatal("expected empty key to fail")
	}
}

func TestGetIdentityNotFound(t *testing.T) {
	store := tempStore(t)
	if _, err := store.GetIdentity(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIdentityExists(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.AddIdentity(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}

	ok, err := store.IdentityExists(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("expected alice to exist, got ok=%v err=%v", ok, err)
	}
	ok, err = store.IdentityExists(ctx, "ghost")
	if err != nil || ok {
		t.Fatalf("expected ghost to be absent, got ok=%v err=%v", ok, err)
	}
}

func TestRemoveIdentityCascades(t *testing.T) {
	store := tempStore(t)
	notifier := &recordingNotifier{}
	store.SetNotifier(notifier)
	ctx := context.Background()

	if _, err := store.AddIdentity(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	if err := store.AddPhoto(ctx, "alice", "/photos/alice/a.jpg"); err != nil {
		t.Fatalf("AddPhoto failed: %v", err)
	}
	if err := store.Assign(ctx, "alice", "bus-12"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if err := store.RemoveIdentity(ctx, "alice"); err != nil {
		t.Fatalf("RemoveIdentity failed: %v", err)
	}

	sets, err := store.ListPhotoSets(ctx)
	if err != nil {
		t.Fatalf("ListPhotoSets failed: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("expected no photo sets after removal, got %d", len(sets))
	}
	assigned, err := store.IsAssigned(ctx, "alice", "bus-12")
	if err != nil {
		t.Fatalf("IsAssigned failed: %v", err)
	}
	if assigned {
		t.Error("expected assignment to be removed with identity")
	}
	if len(notifier.removed) != 1 || notifier.removed[0] != "alice" {
		t.Errorf("expected removal callback for alice, got %v", notifier.removed)
	}
}

func TestRemoveIdentityNotFound(t *testing.T) {
	store := tempStore(t)
	if err := store.RemoveIdentity(context.Background(), "ghost"); err == nil {
		t.Fatal("expected missing identity to fail")
	}
}
// #endregion identity-tests

// #region photo-tests
func TestAddPhotoBumpsVersionAndNotifies(t *testing.T) {
	store := tempStore(t)
	notifier := &recordingNotifier{}
	store.SetNotifier(notifier)
	ctx := context.Background()

	if _, err := store.AddIdentity(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	if err := store.AddPhoto(ctx, "alice", "/photos/alice/a.jpg"); err != nil {
		t.Fatalf("AddPhoto failed: %v", err)
	}
	if err := store.AddPhoto(ctx, "alice", "/photos/alice/b.jpg"); err != nil {
		t.Fatalf("AddPhoto failed: %v", err)
	}

	got, err := store.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("GetIdentity failed: %v", err)
	}
	if got.PhotoVersion != 2 {
		t.Errorf("expected photo version 2, got %d", got.PhotoVersion)
	}
	if got.PhotoCount != 2 {
		t.Errorf("expected photo count 2, got %d", got.PhotoCount)
	}

	paths, err := store.Photos(ctx, "alice")
	if err != nil {
		t.Fatalf("Photos failed: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/photos/alice/a.jpg" || paths[1] != "/photos/alice/b.jpg" {
		t.Errorf("unexpected photo order: %v", paths)
	}
	if len(notifier.photosChanged) != 2 {
		t.Errorf("expected 2 change callbacks, got %d", len(notifier.photosChanged))
	}
}

func TestAddPhotoUnknownIdentity(t *testing.T) {
	store := tempStore(t)
	if err := store.AddPhoto(context.Background(), "ghost", "/photos/ghost/a.jpg"); err == nil {
		t.Fatal("expected unknown identity to fail")
	}
}

func TestRemovePhoto(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.AddIdentity(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	if err := store.AddPhoto(ctx, "alice", "/photos/alice/a.jpg"); err != nil {
		t.Fatalf("AddPhoto failed: %v", err)
	}
	if err := store.RemovePhoto(ctx, "alice", "/photos/alice/a.jpg"); err != nil {
		t.Fatalf("RemovePhoto failed: %v", err)
	}

	got, err := store.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("GetIdentity failed: %v", err)
	}
	if got.PhotoVersion != 2 {
		t.Errorf("expected photo version 2 after add+remove, got %d", got.PhotoVersion)
	}
	if got.PhotoCount != 0 {
		t.Errorf("expected photo count 0, got %d", got.PhotoCount)
	}

	if err := store.RemovePhoto(ctx, "alice", "/photos/alice/a.jpg"); err == nil {
		t.Fatal("expected removing missing photo to fail")
	}
}
// #endregion photo-tests

// #region sync-tests
func TestSyncPhotoDirCreatesAndReplaces(t *testing.T) {
	store := tempStore(t)
	notifier := &recordingNotifier{}
	store.SetNotifier(notifier)
	ctx := context.Background()

	paths := []string{"/photos/bob/1.jpg", "/photos/bob/2.jpg"}
	if err := store.SyncPhotoDir(ctx, "bob", "Bob", paths); err != nil {
		t.Fatalf("SyncPhotoDir failed: %v", err)
	}

	got, err := store.GetIdentity(ctx, "bob")
	if err != nil {
		t.Fatalf("expected identity auto-created: %v", err)
	}
	if got.PhotoVersion != 1 {
		t.Errorf("expected photo version 1, got %d", got.PhotoVersion)
	}
	if got.PhotoCount != 2 {
		t.Errorf("expected photo count 2, got %d", got.PhotoCount)
	}

	// Same path list again: no version bump, no callback.
	if err := store.SyncPhotoDir(ctx, "bob", "Bob", paths); err != nil {
		t.Fatalf("SyncPhotoDir failed: %v", err)
	}
	got, _ = store.GetIdentity(ctx, "bob")
	if got.PhotoVersion != 1 {
		t.Errorf("expected unchanged version 1, got %d", got.PhotoVersion)
	}
	if len(notifier.photosChanged) != 1 {
		t.Errorf("expected 1 change callback, got %d", len(notifier.photosChanged))
	}

	// Changed list replaces the set and bumps the version.
	if err := store.SyncPhotoDir(ctx, "bob", "Bob", []string{"/photos/bob/3.jpg"}); err != nil {
		t.Fatalf("SyncPhotoDir failed: %v", err)
	}
	got, _ = store.GetIdentity(ctx, "bob")
	if got.PhotoVersion != 2 {
		t.Errorf("expected photo version 2, got %d", got.PhotoVersion)
	}
	photos, _ := store.Photos(ctx, "bob")
	if len(photos) != 1 || photos[0] != "/photos/bob/3.jpg" {
		t.Errorf("expected replaced photo set, got %v", photos)
	}
	if len(notifier.photosChanged) != 2 {
		t.Errorf("expected 2 change callbacks, got %d", len(notifier.photosChanged))
	}
}
// #endregion sync-tests

// #region assignment-tests
func TestAssignmentLifecycle(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.AddIdentity(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	if err := store.Assign(ctx, "alice", "bus-12"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	assigned, err := store.IsAssigned(ctx, "alice", "bus-12")
	if err != nil || !assigned {
		t.Fatalf("expected active assignment, got ok=%v err=%v", assigned, err)
	}

	if err := store.Unassign(ctx, "alice", "bus-12"); err != nil {
		t.Fatalf("Unassign failed: %v", err)
	}
	assigned, err = store.IsAssigned(ctx, "alice", "bus-12")
	if err != nil {
		t.Fatalf("IsAssigned failed: %v", err)
	}
	if assigned {
		t.Fatal("expected assignment inactive after unassign")
	}

	asgs, err := store.ListAssignments(ctx, "bus-12")
	if err != nil {
		t.Fatalf("ListAssignments failed: %v", err)
	}
	if len(asgs) != 1 || asgs[0].Status != AssignmentInactive {
		t.Errorf("expected one inactive assignment, got %+v", asgs)
	}

	// Re-assign reactivates the existing row.
	if err := store.Assign(ctx, "alice", "bus-12"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	assigned, _ = store.IsAssigned(ctx, "alice", "bus-12")
	if !assigned {
		t.Fatal("expected reactivated assignment")
	}
}

func TestAssignUnknownIdentity(t *testing.T) {
	store := tempStore(t)
	if err := store.Assign(context.Background(), "ghost", "bus-12"); err == nil {
		t.Fatal("expected unknown identity to fail")
	}
}

func TestUnassignNotFound(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()
	if _, err := store.AddIdentity(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	if err := store.Unassign(ctx, "alice", "bus-99"); err == nil {
		t.Fatal("expected missing assignment to fail")
	}
}
// #endregion assignment-tests

// #region photo-set-tests
func TestListPhotoSets(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	if _, err := store.AddIdentity(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	if err := store.AddPhoto(ctx, "alice", "/photos/alice/a.jpg"); err != nil {
		t.Fatalf("AddPhoto failed: %v", err)
	}
	if err := store.AddPhoto(ctx, "alice", "/photos/alice/b.jpg"); err != nil {
		t.Fatalf("AddPhoto failed: %v", err)
	}
	if _, err := store.AddIdentity(ctx, "carol", "Carol"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}

	sets, err := store.ListPhotoSets(ctx)
	if err != nil {
		t.Fatalf("ListPhotoSets failed: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 photo sets, got %d", len(sets))
	}
	if sets[0].IdentityKey != "alice" || len(sets[0].PhotoPaths) != 2 {
		t.Errorf("unexpected first set: %+v", sets[0])
	}
	if sets[0].PhotoVersion != 2 {
		t.Errorf("expected photo version 2, got %d", sets[0].PhotoVersion)
	}
	if sets[1].IdentityKey != "carol" || len(sets[1].PhotoPaths) != 0 {
		t.Errorf("expected carol with no photos, got %+v", sets[1])
	}
}
// #endregion photo-set-tests

// #region sanitize-tests
func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alice Smith", "alice_smith"},
		{"  Bob  ", "bob"},
		{"carol-92", "carol-92"},
		{"Dan! O'Neil", "dan_oneil"},
		{"", ""},
	}
	for _, c := range cases {
		if got := SanitizeKey(c.in); got != c.want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
// #endregion sanitize-tests
