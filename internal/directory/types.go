package directory

import (
	"errors"
	"strings"
	"time"
)

// #region errors
var (
	// ErrNotFound marks lookups of identities, photos or assignments that
	// do not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists marks enrollment of an identity key already in use.
	ErrExists = errors.New("already exists")
)
// #endregion errors

// #region identity
// Identity is one enrolled subject.
type Identity struct {
	IdentityKey  string    `json:"identity_key"`
	DisplayName  string    `json:"display_name"`
	PhotoVersion int64     `json:"photo_version"`
	PhotoCount   int       `json:"photo_count"`
	CreatedAt    time.Time `json:"created_at"`
}
// #endregion identity

// #region assignment
// Assignment grants an identity boarding access to one context.
type Assignment struct {
	IdentityKey string    `json:"identity_key"`
	ContextID   string    `json:"context_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	AssignmentActive   = "active"
	AssignmentInactive = "inactive"
)
// #endregion assignment

// #region notifier
// Notifier receives enrollment-change callbacks after a mutation commits.
// Implementations must not block.
type Notifier interface {
	OnPhotosChanged(identityKey string)
	OnIdentityRemoved(identityKey string)
}
// #endregion notifier

// #region sanitize
// SanitizeKey converts a free-form name (e.g. a photo folder) into an
// identity key: lowercased, spaces collapsed to underscores, anything
// outside [a-z0-9_-] dropped.
func SanitizeKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
// #endregion sanitize
