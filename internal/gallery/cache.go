package gallery

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const cacheSchema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	identity_key   TEXT PRIMARY KEY,
	source_version INTEGER NOT NULL,
	vectors        BLOB NOT NULL,
	updated_at     TEXT NOT NULL
);
`
// #endregion schema

// #region cache-struct
// Cache persists derived embeddings so an unchanged identity (or a process
// restart) does not pay another round of model calls during rebuild.
type Cache struct {
	db *sql.DB
}
// #endregion cache-struct

// #region constructor
// NewCache ensures the cache table exists on the shared database.
func NewCache(db *sql.DB) (*Cache, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("migrate embedding cache: %w", err)
	}
	return &Cache{db: db}, nil
}
// #endregion constructor

// #region load
// Load returns all cached entries keyed by identity.
func (c *Cache) Load() (map[string]Entry, error) {
	rows, err := c.db.Query(`SELECT identity_key, source_version, vectors FROM embedding_cache`)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.IdentityKey, &e.SourceVersion, &blob); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		e.Vectors, err = decodeVectors(blob)
		if err != nil {
			return nil, fmt.Errorf("decode vectors for %s: %w", e.IdentityKey, err)
		}
		out[e.IdentityKey] = e
	}
	return out, rows.Err()
}
// #endregion load

// #region put
// Put upserts one identity's entry.
func (c *Cache) Put(e Entry) error {
	_, err := c.db.Exec(
		`INSERT INTO embedding_cache (identity_key, source_version, vectors, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(identity_key) DO UPDATE SET
		   source_version = excluded.source_version,
		   vectors = excluded.vectors,
		   updated_at = excluded.updated_at`,
		e.IdentityKey, e.SourceVersion, encodeVectors(e.Vectors),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}
// #endregion put

// #region prune
// Prune deletes cached entries whose identity is no longer enrolled.
func (c *Cache) Prune(keep map[string]bool) error {
	rows, err := c.db.Query(`SELECT identity_key FROM embedding_cache`)
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("scan cache key: %w", err)
		}
		if !keep[key] {
			stale = append(stale, key)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, key := range stale {
		if _, err := c.db.Exec(`DELETE FROM embedding_cache WHERE identity_key = ?`, key); err != nil {
			return fmt.Errorf("prune %s: %w", key, err)
		}
	}
	return nil
}
// #endregion prune

// #region vector-encoding
// Blob layout: uint32 vector count, then per vector a uint32 length followed
// by little-endian float32 elements.
func encodeVectors(vecs [][]float32) []byte {
	size := 4
	for _, v := range vecs {
		size += 4 + len(v)*4
	}
	buf := make([]byte, 0, size)
	var u32 [4]byte

	binary.LittleEndian.PutUint32(u32[:], uint32(len(vecs)))
	buf = append(buf, u32[:]...)
	for _, v := range vecs {
		binary.LittleEndian.PutUint32(u32[:], uint32(len(v)))
		buf = append(buf, u32[:]...)
		for _, f := range v {
			binary.LittleEndian.PutUint32(u32[:], math.Float32bits(f))
			buf = append(buf, u32[:]...)
		}
	}
	return buf
}

func decodeVectors(b []byte) ([][]float32, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(b))
	}
	count := int(binary.LittleEndian.Uint32(b))
	off := 4

	vecs := make([][]float32, 0, count)
	for i := 0; i < count; i++ {
		if off+4 > len(b) {
			return nil, fmt.Errorf("truncated vector header at offset %d", off)
		}
		n := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		if off+n*4 > len(b) {
			return nil, fmt.Errorf("truncated vector data at offset %d", off)
		}
		v := make([]float32, n)
		for j := 0; j < n; j++ {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
			off += 4
		}
		vecs = append(vecs, v)
	}
	return vecs, nil
}
// #endregion vector-encoding
