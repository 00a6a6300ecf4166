// Package policy is the single source of who may see and do what with a case.
// Everything here is pure: no I/O, no clock, no database.
package policy

import (
	"slices"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

type Action string

const (
	ActionCreateCase      Action = "case.create"
	ActionViewCase        Action = "case.view"
	ActionTakeCase        Action = "case.take"
	ActionChangeStatus    Action = "case.status"
	ActionAssignCase      Action = "case.assign"
	ActionEditCase        Action = "case.edit"
	ActionComment         Action = "case.comment"
	ActionCommentInternal Action = "case.comment.internal"
	ActionViewInternal    Action = "case.comment.internal.read"
	ActionManageAccess    Action = "access.manage"
	ActionManageUsers     Action = "users.manage"
	ActionManageRefs      Action = "refs.manage"
	ActionReadRefs        Action = "refs.read"
)

// Subject is an actor plus the category grants that widen an executor's view.
type Subject struct {
	domain.Actor
	Categories []string
}

// Scope is the visible-set predicate for a subject. It is evaluated in SQL
// for listings and in Go for single cases; both read the same fields.
type Scope struct {
	All           bool
	AuthorID      string
	NewPool       bool
	ResponsibleID string
	CategoryIDs   []string
}

// Empty reports whether the scope can match nothing.
func (s Scope) Empty() bool {
	return !s.All && s.AuthorID == "" && !s.NewPool && s.ResponsibleID == "" && len(s.CategoryIDs) == 0
}

// Contains reports whether c is inside the scope.
func (s Scope) Contains(c domain.Case) bool {
	switch {
	case s.All:
		return true
	case s.AuthorID != "" && c.AuthorID == s.AuthorID:
		return true
	case s.NewPool && c.Status == domain.StatusNew:
		return true
	case s.ResponsibleID != "" && c.Responsible() == s.ResponsibleID:
		return true
	case slices.Contains(s.CategoryIDs, c.CategoryID):
		return true
	}
	return false
}

// ScopeFor builds the visible set. The NEW pool is an unconditional part of
// an executor's scope; category grants only ever add to it.
func ScopeFor(s Subject) Scope {
	if !s.Active {
		return Scope{}
	}
	switch s.Role {
	case domain.RoleAdmin:
		return Scope{All: true}
	case domain.RoleOperator:
		return Scope{AuthorID: s.ID}
	case domain.RoleExecutor:
		return Scope{
			NewPool:       true,
			ResponsibleID: s.ID,
			CategoryIDs:   slices.Clone(s.Categories),
		}
	}
	return Scope{}
}

// Visible reports whether c belongs to the subject's visible set.
func Visible(s Subject, c domain.Case) bool {
	return ScopeFor(s).Contains(c)
}

func isStaff(r domain.Role) bool {
	return r == domain.RoleExecutor || r == domain.RoleAdmin
}

// Can is the central authorization table. Actions that are not about a
// particular case accept a nil case.
func Can(s Subject, action Action, c *domain.Case) bool {
	if !s.Active || !s.Role.Valid() {
		return false
	}
	admin := s.Role == domain.RoleAdmin
	switch action {
	case ActionCreateCase:
		return s.Role == domain.RoleOperator
	case ActionManageAccess, ActionManageUsers, ActionManageRefs:
		return admin
	case ActionReadRefs:
		return true
	case ActionViewInternal:
		return isStaff(s.Role)
	}
	if c == nil || !Visible(s, *c) {
		return false
	}
	switch action {
	case ActionViewCase, ActionComment:
		return true
	case ActionCommentInternal:
		return isStaff(s.Role)
	case ActionTakeCase:
		return isStaff(s.Role)
	case ActionChangeStatus:
		return admin || (s.Role == domain.RoleExecutor && c.Responsible() == s.ID)
	case ActionAssignCase, ActionEditCase:
		return admin
	}
	return false
}

var workEdges = map[domain.Status][]domain.Status{
	domain.StatusInProgress: {domain.StatusNeedsInfo, domain.StatusRejected, domain.StatusDone},
	domain.StatusNeedsInfo:  {domain.StatusInProgress, domain.StatusRejected, domain.StatusDone},
}

// AllowedTransition reports whether role may move a case from one status to
// another through a status change. NEW -> IN_PROGRESS for non-admins happens
// only through take and is not listed here.
func AllowedTransition(role domain.Role, from, to domain.Status) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if role == domain.RoleAdmin {
		return true
	}
	return slices.Contains(workEdges[from], to)
}

// NextStatuses lists the statuses role may move a case to from the given one.
func NextStatuses(role domain.Role, from domain.Status) []domain.Status {
	var res []domain.Status
	for _, to := range domain.Statuses {
		if AllowedTransition(role, from, to) {
			res = append(res, to)
		}
	}
	return res
}
