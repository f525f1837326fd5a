// Package policy is the single source of truth for what a user may do inside
// an organization, given their membership role. It is purely functional: no
// queries, no side effects. The last-owner protection is not decided here
// because it needs a count over the full membership set; the accounts service
// applies it after the policy allows the action.
package policy

import "github.com/orgbase/orgbase/pkg/orgbase/models"

// Action is an operation on an organization's member collection.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
	ActionList   Action = "list"
)

// Reason explains a policy decision.
type Reason string

const (
	ReasonAllowed    Reason = "allowed"
	ReasonNotAMember Reason = "not_a_member"
	ReasonForbidden  Reason = "forbidden"
)

// Decision is the result of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Evaluate maps (membership, role, action) to a decision. Rules, in priority
// order: no active membership denies everything; MEMBER may only list;
// MANAGER and OWNER may do everything.
func Evaluate(isMember bool, role models.Role, action Action) Decision {
	if !isMember {
		return Decision{Allowed: false, Reason: ReasonNotAMember}
	}

	switch role {
	case models.RoleOwner, models.RoleManager:
		return Decision{Allowed: true, Reason: ReasonAllowed}
	case models.RoleMember:
		if action == ActionList {
			return Decision{Allowed: true, Reason: ReasonAllowed}
		}
		return Decision{Allowed: false, Reason: ReasonForbidden}
	}

	return Decision{Allowed: false, Reason: ReasonForbidden}
}
