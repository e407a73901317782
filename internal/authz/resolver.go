package authz

import (
	"context"
	"fmt"
)

// #region collaborators
// IdentityLookup reports whether an identity is currently enrolled.
type IdentityLookup interface {
	IdentityExists(ctx context.Context, identityKey string) (bool, error)
}

// AssignmentLookup reports whether an identity holds an active assignment
// for a boarding context.
type AssignmentLookup interface {
	IsAssigned(ctx context.Context, identityKey, contextID string) (bool, error)
}
// #endregion collaborators

// #region resolver
// Resolver turns a recognition result into a boarding decision for one
// context. It holds no state of its own beyond the two read-only lookups.
type Resolver struct {
	identities  IdentityLookup
	assignments AssignmentLookup
}

// NewResolver builds a resolver over the given directory lookups.
func NewResolver(identities IdentityLookup, assignments AssignmentLookup) *Resolver {
	return &Resolver{identities: identities, assignments: assignments}
}

// Authorize decides whether identityKey may board contextID. An empty
// identityKey is the no-match case. Lookup failures are returned as errors,
// never folded into a denial.
func (r *Resolver) Authorize(ctx context.Context, identityKey, contextID string) (Decision, error) {
	if identityKey == "" {
		return Decision{Reason: ReasonNoMatch}, nil
	}

	exists, err := r.identities.IdentityExists(ctx, identityKey)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup identity %s: %w", identityKey, err)
	}
	if !exists {
		return Decision{Reason: ReasonUnknownIdentity}, nil
	}

	assigned, err := r.assignments.IsAssigned(ctx, identityKey, contextID)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup assignment %s/%s: %w", identityKey, contextID, err)
	}
	if !assigned {
		return Decision{Reason: ReasonNotAssigned}, nil
	}

	return Decision{Authorized: true}, nil
}
// #endregion resolver
