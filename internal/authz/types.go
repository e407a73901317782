package authz

// #region reasons
// Reason explains a denied decision. Empty means granted.
type Reason string

const (
	ReasonNoMatch         Reason = "no_match"
	ReasonUnknownIdentity Reason = "unknown_identity"
	ReasonNotAssigned     Reason = "not_assigned"
)
// #endregion reasons

// #region decision
// Decision is the boarding outcome for one recognized (or unmatched) frame.
type Decision struct {
	Authorized bool
	Reason     Reason // empty when authorized
}
// #endregion decision
