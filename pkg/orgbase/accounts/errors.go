package accounts

import "errors"

// Typed errors returned by the service. All are caused by violated business
// invariants or caller input; none are transient, so callers never retry.
var (
	ErrDuplicateEmail      = errors.New("a user with this email already exists")
	ErrWeakPassword        = errors.New("password does not meet the policy requirements")
	ErrNotAMember          = errors.New("user is not a member of the organization")
	ErrForbidden           = errors.New("user does not have permission for this operation")
	ErrLastOwnerProtection = errors.New("organization cannot be left without an active owner")
	ErrAlreadyMember       = errors.New("user is already a member of the organization")
	ErrInvalidRole         = errors.New("invalid role")
	ErrNotFound            = errors.New("record not found")
	ErrInvalidCredentials  = errors.New("invalid email or password")
)
