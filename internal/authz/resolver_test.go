package authz

import (
	"context"
	"errors"
	"testing"
)

// #region fakes
type fakeDirectory struct {
	known     map[string]bool
	assigned  map[string]bool // key: identityKey + "/" + contextID
	identErr  error
	assignErr error
}

func (f *fakeDirectory) IdentityExists(ctx context.Context, identityKey string) (bool, error) {
	if f.identErr != nil {
		return false, f.identErr
	}
	return f.known[identityKey], nil
}

func (f *fakeDirectory) IsAssigned(ctx context.Context, identityKey, contextID string) (bool, error) {
	if f.assignErr != nil {
		return false, f.assignErr
	}
	return f.assigned[identityKey+"/"+contextID], nil
}
// #endregion fakes

// #region tests
func TestAuthorize_Granted(t *testing.T) {
	dir := &fakeDirectory{
		known:    map[string]bool{"alice": true},
		assigned: map[string]bool{"alice/bus-12": true},
	}
	r := NewResolver(dir, dir)

	dec, err := r.Authorize(context.Background(), "alice", "bus-12")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !dec.Authorized {
		t.Fatal("expected authorized decision")
	}
	if dec.Reason != "" {
		t.Fatalf("expected empty reason on grant, got %q", dec.Reason)
	}
}

func TestAuthorize_NoMatch(t *testing.T) {
	dir := &fakeDirectory{known: map[string]bool{"alice": true}}
	r := NewResolver(dir, dir)

	dec, err := r.Authorize(context.Background(), "", "bus-12")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if dec.Authorized {
		t.Fatal("expected denial for empty identity")
	}
	if dec.Reason != ReasonNoMatch {
		t.Fatalf("expected %q, got %q", ReasonNoMatch, dec.Reason)
	}
}

func TestAuthorize_UnknownIdentity(t *testing.T) {
	dir := &fakeDirectory{known: map[string]bool{}}
	r := NewResolver(dir, dir)

	dec, err := r.Authorize(context.Background(), "ghost", "bus-12")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if dec.Authorized {
		t.Fatal("expected denial for unknown identity")
	}
	if dec.Reason != ReasonUnknownIdentity {
		t.Fatalf("expected %q, got %q", ReasonUnknownIdentity, dec.Reason)
	}
}

func TestAuthorize_NotAssigned(t *testing.T) {
	dir := &fakeDirectory{
		known:    map[string]bool{"alice": true},
		assigned: map[string]bool{"alice/bus-7": true},
	}
	r := NewResolver(dir, dir)

	dec, err := r.Authorize(context.Background(), "alice", "bus-12")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if dec.Authorized {
		t.Fatal("expected denial for unassigned context")
	}
	if dec.Reason != ReasonNotAssigned {
		t.Fatalf("expected %q, got %q", ReasonNotAssigned, dec.Reason)
	}
}

func TestAuthorize_IdentityLookupError(t *testing.T) {
	wantErr := errors.New("db locked")
	dir := &fakeDirectory{identErr: wantErr}
	r := NewResolver(dir, dir)

	_, err := r.Authorize(context.Background(), "alice", "bus-12")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected lookup error to surface, got %v", err)
	}
}

func TestAuthorize_AssignmentLookupError(t *testing.T) {
	wantErr := errors.New("db locked")
	dir := &fakeDirectory{
		known:     map[string]bool{"alice": true},
		assignErr: wantErr,
	}
	r := NewResolver(dir, dir)

	_, err := r.Authorize(context.Background(), "alice", "bus-12")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected lookup error to surface, got %v", err)
	}
}
// #endregion tests
