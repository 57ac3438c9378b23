// Package access is the single authority for field edits and the
// draft → sent → completed state gate.
package access

import (
	"fmt"

	"github.com/georgepadayatti/signflow/document"
)

// Role is the party acting on a document.
type Role string

const (
	RoleComposer Role = "composer"
	RoleBusiness Role = "business"
	RoleContact  Role = "contact"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleComposer, RoleBusiness, RoleContact:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", document.ErrUnauthorized, s)
}

// Party maps the signing roles to the assignee they fill for.
func (r Role) Party() (document.Assignee, bool) {
	switch r {
	case RoleBusiness:
		return document.AssigneeBusiness, true
	case RoleContact:
		return document.AssigneeContact, true
	}
	return "", false
}

// composes reports whether the role may author the document. The business
// side prepares its own documents, so it composes too.
func (r Role) composes() bool {
	return r == RoleComposer || r == RoleBusiness
}

// CanEdit decides whether role may write field's value in the given status.
// In draft the author may write anything. Once sent only the assigned party
// may write, and only an unfilled field. Nothing is writable once completed.
func CanEdit(role Role, field document.Field, status document.Status) bool {
	switch status {
	case document.StatusDraft:
		return role.composes()
	case document.StatusSent:
		party, ok := role.Party()
		return ok && party == field.Assignee && !field.Filled()
	}
	return false
}

// CanEditLayout reports whether role may change background, pages or field
// placement.
func CanEditLayout(role Role, status document.Status) bool {
	return status == document.StatusDraft && role.composes()
}
