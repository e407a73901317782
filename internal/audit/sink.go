package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	event_id     TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	context_id   TEXT NOT NULL,
	frame_id     TEXT,
	identity_key TEXT,
	authorized   INTEGER NOT NULL DEFAULT 0,
	reason       TEXT,
	distance     REAL NOT NULL DEFAULT 0,
	confidence   REAL NOT NULL DEFAULT 0,
	face_count   INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log (created_at);
CREATE INDEX IF NOT EXISTS idx_audit_log_session ON audit_log (session_id);
`
// #endregion schema

// #region sink-struct
// Sink persists audit events to the audit_log table.
type Sink struct {
	db *sql.DB
}

// NewSink prepares the audit_log table on an already-open database.
func NewSink(db *sql.DB) (*Sink, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate audit log: %w", err)
	}
	return &Sink{db: db}, nil
}
// #endregion sink-struct

// #region append
// Append writes one event. A missing event ID, kind or timestamp is
// filled in.
func (s *Sink) Append(ctx context.Context, e Event) error {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Kind == "" {
		e.Kind = KindDecision
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event_id, kind, session_id, context_id, frame_id, identity_key, authorized, reason, distance, confidence, face_count, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID,
		e.Kind,
		e.SessionID,
		e.ContextID,
		nullIfEmpty(e.FrameID),
		nullIfEmpty(e.IdentityKey),
		boolToInt(e.Authorized),
		nullIfEmpty(e.Reason),
		e.Distance,
		e.Confidence,
		e.FaceCount,
		nullIfEmpty(e.Error),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
// #endregion append

// #region recent
// Recent returns the newest events, optionally filtered by context and kind.
func (s *Sink) Recent(ctx context.Context, limit int, contextID, kind string) ([]Event, error) {
	query := `SELECT event_id, kind, session_id, context_id, frame_id, identity_key, authorized, reason, distance, confidence, face_count, error, created_at
	          FROM audit_log`
	var conds []string
	var args []interface{}
	if contextID != "" {
		conds = append(conds, "context_id = ?")
		args = append(args, contextID)
	}
	if kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, kind)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}
// #endregion recent

// #region session-events
// SessionEvents returns all events for one session in order of occurrence.
func (s *Sink) SessionEvents(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, kind, session_id, context_id, frame_id, identity_key, authorized, reason, distance, confidence, face_count, error, created_at
		 FROM audit_log WHERE session_id = ? ORDER BY created_at`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}
// #endregion session-events

// #region daily-summary
// DailySummary aggregates events for one UTC day (YYYY-MM-DD), optionally
// restricted to a single context.
func (s *Sink) DailySummary(ctx context.Context, day, contextID string) (Summary, error) {
	query := `SELECT kind, authorized, reason, identity_key FROM audit_log WHERE substr(created_at, 1, 10) = ?`
	args := []interface{}{day}
	if contextID != "" {
		query += ` AND context_id = ?`
		args = append(args, contextID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Summary{}, fmt.Errorf("query daily summary: %w", err)
	}
	defer rows.Close()

	sum := Summary{Day: day, ContextID: contextID, DeniedByReason: map[string]int{}}
	seen := map[string]bool{}
	for rows.Next() {
		var kind string
		var authorized int
		var reason, identityKey sql.NullString
		if err := rows.Scan(&kind, &authorized, &reason, &identityKey); err != nil {
			return Summary{}, fmt.Errorf("scan row: %w", err)
		}
		sum.Total++
		if kind == KindError {
			sum.Errors++
			continue
		}
		if authorized != 0 {
			sum.Granted++
		} else {
			sum.Denied++
			if reason.Valid {
				sum.DeniedByReason[reason.String]++
			}
		}
		if identityKey.Valid && !seen[identityKey.String] {
			seen[identityKey.String] = true
			sum.UniqueIdentities++
		}
	}
	if len(sum.DeniedByReason) == 0 {
		sum.DeniedByReason = nil
	}
	return sum, rows.Err()
}
// #endregion daily-summary

// #region scan
func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var frameID, identityKey, reason, errMsg sql.NullString
		var authorized int
		var createdStr string
		if err := rows.Scan(&e.EventID, &e.Kind, &e.SessionID, &e.ContextID, &frameID, &identityKey, &authorized, &reason, &e.Distance, &e.Confidence, &e.FaceCount, &errMsg, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if frameID.Valid {
			e.FrameID = frameID.String
		}
		if identityKey.Valid {
			e.IdentityKey = identityKey.String
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		if errMsg.Valid {
			e.Error = errMsg.String
		}
		e.Authorized = authorized != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		events = append(events, e)
	}
	return events, rows.Err()
}
// #endregion scan

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion helpers
