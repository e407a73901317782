package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/boardgate/internal/gallery"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS identities (
	identity_key  TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL,
	photo_version INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS photos (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	identity_key  TEXT NOT NULL,
	path          TEXT NOT NULL,
	position      INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	UNIQUE (identity_key, path),
	FOREIGN KEY (identity_key) REFERENCES identities(identity_key) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS assignments (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	identity_key  TEXT NOT NULL,
	context_id    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TEXT NOT NULL,
	UNIQUE (identity_key, context_id),
	FOREIGN KEY (identity_key) REFERENCES identities(identity_key) ON DELETE CASCADE
);
`
// #endregion schema

// #region store-struct
// Store manages identities, reference photos and boarding assignments
// in SQLite.
type Store struct {
	db       *sql.DB
	notifier Notifier
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. audit).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region notifier
// SetNotifier registers the enrollment-change listener. Set once during
// wiring, before the store serves traffic.
func (s *Store) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Store) notifyPhotosChanged(identityKey string) {
	if s.notifier != nil {
		s.notifier.OnPhotosChanged(identityKey)
	}
}

func (s *Store) notifyIdentityRemoved(identityKey string) {
	if s.notifier != nil {
		s.notifier.OnIdentityRemoved(identityKey)
	}
}
// #endregion notifier

// #region add-identity
// AddIdentity enrolls a new identity with no photos yet.
func (s *Store) AddIdentity(ctx context.Context, identityKey, displayName string) (Identity, error) {
	if identityKey == "" {
		return Identity{}, fmt.Errorf("identity key must not be empty")
	}
	if displayName == "" {
		displayName = identityKey
	}
	now := time.Now().UTC()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identities WHERE identity_key = ?`, identityKey,
	).Scan(&exists)
	if err != nil {
		return Identity{}, fmt.Errorf("check identity: %w", err)
	}
	if exists > 0 {
		return Identity{}, fmt.Errorf("identity %s %w", identityKey, ErrExists)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identities (identity_key, display_name, photo_version, created_at)
		 VALUES (?, ?, 0, ?)`,
		identityKey, displayName, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("insert identity: %w", err)
	}

	return Identity{
		IdentityKey: identityKey,
		DisplayName: displayName,
		CreatedAt:   now,
	}, nil
}
// #endregion add-identity

// #region get-identity
// GetIdentity retrieves one identity by key.
func (s *Store) GetIdentity(ctx context.Context, identityKey string) (Identity, error) {
	var ident Identity
	var createdStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT i.identity_key, i.display_name, i.photo_version, i.created_at,
		        (SELECT COUNT(*) FROM photos p WHERE p.identity_key = i.identity_key)
		 FROM identities i WHERE i.identity_key = ?`, identityKey,
	).Scan(&ident.IdentityKey, &ident.DisplayName, &ident.PhotoVersion, &createdStr, &ident.PhotoCount)
	if err == sql.ErrNoRows {
		return Identity{}, fmt.Errorf("identity %s %w", identityKey, ErrNotFound)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("get identity %s: %w", identityKey, err)
	}
	ident.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return ident, nil
}

// IdentityExists reports whether an identity is enrolled.
func (s *Store) IdentityExists(ctx context.Context, identityKey string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identities WHERE identity_key = ?`, identityKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check identity: %w", err)
	}
	return count > 0, nil
}
// #endregion get-identity

// #region list-identities
// ListIdentities returns all identities with their photo counts.
func (s *Store) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.identity_key, i.display_name, i.photo_version, i.created_at,
		        (SELECT COUNT(*) FROM photos p WHERE p.identity_key = i.identity_key)
		 FROM identities i ORDER BY i.identity_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var idents []Identity
	for rows.Next() {
		var ident Identity
		var createdStr string
		if err := rows.Scan(&ident.IdentityKey, &ident.DisplayName, &ident.PhotoVersion, &createdStr, &ident.PhotoCount); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ident.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		idents = append(idents, ident)
	}
	return idents, rows.Err()
}
// #endregion list-identities

// #region remove-identity
// RemoveIdentity deletes an identity along with its photos and assignments.
func (s *Store) RemoveIdentity(ctx context.Context, identityKey string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM identities WHERE identity_key = ?`, identityKey,
	)
	if err != nil {
		return fmt.Errorf("remove identity %s: %w", identityKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("identity %s %w", identityKey, ErrNotFound)
	}
	s.notifyIdentityRemoved(identityKey)
	return nil
}
// #endregion remove-identity

// #region add-photo
// AddPhoto appends a reference photo and bumps the identity's photo version.
func (s *Store) AddPhoto(ctx context.Context, identityKey, path string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identities WHERE identity_key = ?`, identityKey,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check identity: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("identity %s %w", identityKey, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO photos (identity_key, path, position, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position)+1, 0) FROM photos WHERE identity_key = ?), ?)`,
		identityKey, path, identityKey, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}

	if err := s.bumpPhotoVersion(ctx, tx, identityKey); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifyPhotosChanged(identityKey)
	return nil
}
// #endregion add-photo

// #region remove-photo
// RemovePhoto drops one reference photo and bumps the photo version.
func (s *Store) RemovePhoto(ctx context.Context, identityKey, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM photos WHERE identity_key = ? AND path = ?`, identityKey, path,
	)
	if err != nil {
		return fmt.Errorf("remove photo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("photo %s for %s %w", path, identityKey, ErrNotFound)
	}

	if err := s.bumpPhotoVersion(ctx, tx, identityKey); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifyPhotosChanged(identityKey)
	return nil
}
// #endregion remove-photo

// #region photos
// Photos returns the ordered photo paths for one identity.
func (s *Store) Photos(ctx context.Context, identityKey string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM photos WHERE identity_key = ? ORDER BY position, id`, identityKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
// #endregion photos

// #region sync-photo-dir
// SyncPhotoDir replaces the photo set for identityKey in one transaction,
// creating the identity if needed. The photo version is bumped only when
// the path list actually changed, so spurious filesystem events do not
// trigger gallery rebuilds.
func (s *Store) SyncPhotoDir(ctx context.Context, identityKey, displayName string, paths []string) error {
	if identityKey == "" {
		return fmt.Errorf("identity key must not be empty")
	}
	if displayName == "" {
		displayName = identityKey
	}
	current, err := s.Photos(ctx, identityKey)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (identity_key, display_name, photo_version, created_at)
		 VALUES (?, ?, 0, ?)
		 ON CONFLICT(identity_key) DO NOTHING`,
		identityKey, displayName, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}

	if samePaths(current, paths) {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM photos WHERE identity_key = ?`, identityKey,
	); err != nil {
		return fmt.Errorf("clear photos: %w", err)
	}
	for i, p := range paths {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO photos (identity_key, path, position, created_at) VALUES (?, ?, ?, ?)`,
			identityKey, p, i, now.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert photo %s: %w", p, err)
		}
	}
	if err := s.bumpPhotoVersion(ctx, tx, identityKey); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifyPhotosChanged(identityKey)
	return nil
}

func samePaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
// #endregion sync-photo-dir

// #region bump-version
func (s *Store) bumpPhotoVersion(ctx context.Context, tx *sql.Tx, identityKey string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE identities SET photo_version = photo_version + 1 WHERE identity_key = ?`, identityKey,
	)
	if err != nil {
		return fmt.Errorf("bump photo version: %w", err)
	}
	return nil
}
// #endregion bump-version

// #region assign
// Assign activates a boarding assignment for (identityKey, contextID).
// Re-assigning an inactive pair reactivates it.
func (s *Store) Assign(ctx context.Context, identityKey, contextID string) error {
	if contextID == "" {
		return fmt.Errorf("context id must not be empty")
	}
	exists, err := s.IdentityExists(ctx, identityKey)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("identity %s %w", identityKey, ErrNotFound)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assignments (identity_key, context_id, status, created_at)
		 VALUES (?, ?, 'active', ?)
		 ON CONFLICT(identity_key, context_id) DO UPDATE SET status = 'active'`,
		identityKey, contextID, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("assign %s/%s: %w", identityKey, contextID, err)
	}
	return nil
}

// Unassign deactivates an assignment. The row is kept for history.
func (s *Store) Unassign(ctx context.Context, identityKey, contextID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET status = 'inactive' WHERE identity_key = ? AND context_id = ?`,
		identityKey, contextID,
	)
	if err != nil {
		return fmt.Errorf("unassign %s/%s: %w", identityKey, contextID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("assignment %s/%s %w", identityKey, contextID, ErrNotFound)
	}
	return nil
}

// IsAssigned reports whether an active assignment exists.
func (s *Store) IsAssigned(ctx context.Context, identityKey, contextID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE identity_key = ? AND context_id = ? AND status = 'active'`,
		identityKey, contextID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return count > 0, nil
}
// #endregion assign

// #region list-assignments
// ListAssignments returns assignments, optionally filtered by context.
func (s *Store) ListAssignments(ctx context.Context, contextID string) ([]Assignment, error) {
	query := `SELECT identity_key, context_id, status, created_at FROM assignments`
	args := []interface{}{}
	if contextID != "" {
		query += ` WHERE context_id = ?`
		args = append(args, contextID)
	}
	query += ` ORDER BY context_id, identity_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var asgs []Assignment
	for rows.Next() {
		var a Assignment
		var createdStr string
		if err := rows.Scan(&a.IdentityKey, &a.ContextID, &a.Status, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		asgs = append(asgs, a)
	}
	return asgs, rows.Err()
}
// #endregion list-assignments

// #region photo-sets
// ListPhotoSets returns every identity's photo version and ordered photo
// paths. It feeds gallery rebuilds.
func (s *Store) ListPhotoSets(ctx context.Context) ([]gallery.PhotoSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.identity_key, i.photo_version, p.path
		 FROM identities i
		 LEFT JOIN photos p ON p.identity_key = i.identity_key
		 ORDER BY i.identity_key, p.position, p.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list photo sets: %w", err)
	}
	defer rows.Close()

	var sets []gallery.PhotoSet
	byKey := map[string]int{}
	for rows.Next() {
		var key string
		var version int64
		var path sql.NullString
		if err := rows.Scan(&key, &version, &path); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		idx, ok := byKey[key]
		if !ok {
			idx = len(sets)
			byKey[key] = idx
			sets = append(sets, gallery.PhotoSet{IdentityKey: key, PhotoVersion: version})
		}
		if path.Valid {
			sets[idx].PhotoPaths = append(sets[idx].PhotoPaths, path.String)
		}
	}
	return sets, rows.Err()
}
// #endregion photo-sets
