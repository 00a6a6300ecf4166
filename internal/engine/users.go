package engine

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/notify"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/repo"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

const fullNameMax = 200

type CreateUserInput struct {
	Username string
	Email    string
	FullName string
	Role     domain.Role
}

// UserPatch changes profile fields; nil leaves a field unchanged.
type UserPatch struct {
	Email    *string
	FullName *string
	Role     *domain.Role
	IsActive *bool
	// Force demotes or deactivates a user who still holds open cases.
	// A demoted user's open cases go back to the NEW pool.
	Force bool
}

type UserQuery struct {
	Role   domain.Role
	Active *bool
	Search string
	Skip   int
	Limit  int
}

func (in CreateUserInput) validate() (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return domain.User{}, invalidInput("username must be 3-50 letters, digits, '.', '_' or '-'").with("field", "username")
	}
	email, err := validateEmail("email", in.Email)
	if err != nil {
		return domain.User{}, err
	}
	fullName, err := requireText("full_name", in.FullName, fullNameMax)
	if err != nil {
		return domain.User{}, err
	}
	if !in.Role.Valid() {
		return domain.User{}, invalidInput("unknown role %q", in.Role).with("field", "role")
	}
	return domain.User{Username: username, Email: email, FullName: fullName, Role: in.Role, IsActive: true}, nil
}

func (e Engine) CreateUser(ctx context.Context, actor domain.Actor, in CreateUserInput) (domain.User, error) {
	if err := e.requireAdmin(actor, policy.ActionManageUsers); err != nil {
		return domain.User{}, err
	}
	return e.insertUser(ctx, in, false)
}

// Bootstrap creates the first user of an empty workspace without an acting
// admin. It fails with InvalidState once any user exists.
func (e Engine) Bootstrap(ctx context.Context, in CreateUserInput) (domain.User, error) {
	return e.insertUser(ctx, in, true)
}

func (e Engine) insertUser(ctx context.Context, in CreateUserInput, onlyIfEmpty bool) (domain.User, error) {
	u, err := in.validate()
	if err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if onlyIfEmpty {
		n, err := e.Repo.CountUsers(ctx, tx)
		if err != nil {
			return domain.User{}, err
		}
		if n > 0 {
			return domain.User{}, invalidState("workspace already has %d users", n)
		}
	}
	now := e.nowString()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.User{}, newError(KindInvalidInput, "duplicate_username", "username %s is taken", u.Username).with("field", "username")
		}
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.Log.Info().Str("user_id", u.ID).Str("username", u.Username).Str("role", string(u.Role)).Msg("user created")
	return u, nil
}

// UpdateUser applies patch. Changing a user's role away from EXECUTOR drops
// their category grants in the same transaction. Demoting or deactivating a
// user who is responsible for IN_PROGRESS or NEEDS_INFO cases fails with
// InvalidState unless patch.Force is set.
func (e Engine) UpdateUser(ctx context.Context, actor domain.Actor, userID string, patch UserPatch) (domain.User, error) {
	if err := e.requireAdmin(actor, policy.ActionManageUsers); err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	u, err := e.Repo.GetUser(ctx, tx, userID)
	if err != nil {
		return domain.User{}, lookupErr(err, "user", userID)
	}
	oldRole, wasActive := u.Role, u.IsActive
	if patch.Email != nil {
		if u.Email, err = validateEmail("email", *patch.Email); err != nil {
			return domain.User{}, err
		}
	}
	if patch.FullName != nil {
		if u.FullName, err = requireText("full_name", *patch.FullName, fullNameMax); err != nil {
			return domain.User{}, err
		}
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return domain.User{}, invalidInput("unknown role %q", *patch.Role).with("field", "role")
		}
		u.Role = *patch.Role
	}
	if patch.IsActive != nil {
		if u.ID == actor.ID && !*patch.IsActive {
			return domain.User{}, invalidInput("admins cannot deactivate themselves").with("field", "is_active")
		}
		u.IsActive = *patch.IsActive
	}
	demoted := oldRole != domain.RoleOperator && u.Role == domain.RoleOperator
	var released []releasedCase
	if demoted || (wasActive && !u.IsActive) {
		if released, err = e.checkOpenCases(ctx, tx, actor, u, demoted, patch.Force); err != nil {
			return domain.User{}, err
		}
	}
	u.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return domain.User{}, lookupErr(err, "user", userID)
	}
	if oldRole == domain.RoleExecutor && u.Role != domain.RoleExecutor {
		ids, err := e.Repo.CategoryIDsFor(ctx, tx, u.ID)
		if err != nil {
			return domain.User{}, err
		}
		for _, id := range ids {
			if _, err := e.Repo.DeleteAccess(ctx, tx, u.ID, id); err != nil {
				return domain.User{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.Log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Bool("active", u.IsActive).Int("released_cases", len(released)).Msg("user updated")
	for _, r := range released {
		e.publish(ctx, newEvent(notify.TypeStatusChanged, r.c, recipients(actor.ID, r.c.AuthorID, u.ID), map[string]any{
			"changed_by":           actor.ID,
			"old_status":           r.from,
			"new_status":           r.c.Status,
			"previous_responsible": u.ID,
		}))
	}
	return u, nil
}

type releasedCase struct {
	c    domain.Case
	from domain.Status
}

// checkOpenCases guards a demotion or deactivation of u. Without force it
// refuses while u holds open cases; with force a demoted user's cases are
// returned to the NEW pool.
func (e Engine) checkOpenCases(ctx context.Context, tx *sql.Tx, actor domain.Actor, u domain.User, demoted, force bool) ([]releasedCase, error) {
	open, err := e.Repo.ActiveCasesFor(ctx, tx, u.ID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	if !force {
		ids := make([]string, 0, len(open))
		for _, c := range open {
			ids = append(ids, c.ID)
		}
		return nil, newError(KindInvalidState, "has_active_cases", "user %s is responsible for %d open cases", u.Username, len(open)).
			with("case_ids", ids)
	}
	if !demoted {
		return nil, nil
	}
	released := make([]releasedCase, 0, len(open))
	for _, c := range open {
		from := repo.CaseState{Status: c.Status, ResponsibleID: c.ResponsibleID}
		if err := e.swap(ctx, tx, &c, from, repo.CaseState{Status: domain.StatusNew}); err != nil {
			return nil, err
		}
		if _, err := e.ledger().Append(ctx, tx, c.ID, actor.ID, &from.Status, domain.StatusNew); err != nil {
			return nil, err
		}
		released = append(released, releasedCase{c: c, from: from.Status})
	}
	return released, nil
}

func (e Engine) SetUserActive(ctx context.Context, actor domain.Actor, userID string, active, force bool) (domain.User, error) {
	return e.UpdateUser(ctx, actor, userID, UserPatch{IsActive: &active, Force: force})
}

// ActiveCases lists the open cases a user is responsible for. Admin only.
func (e Engine) ActiveCases(ctx context.Context, actor domain.Actor, userID string) ([]domain.Case, error) {
	if err := e.requireAdmin(actor, policy.ActionManageUsers); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetUser(ctx, e.DB, userID); err != nil {
		return nil, lookupErr(err, "user", userID)
	}
	res, err := e.Repo.ActiveCasesFor(ctx, e.DB, userID)
	if err != nil {
		return nil, err
	}
	return nonNil(res), nil
}

// GetUser returns a user profile. Non-admins may only read their own.
func (e Engine) GetUser(ctx context.Context, actor domain.Actor, userID string) (domain.User, error) {
	if err := requireActive(actor); err != nil {
		return domain.User{}, err
	}
	if actor.Role != domain.RoleAdmin && actor.ID != userID {
		return domain.User{}, forbidden("actor %s may not read user %s", actor.ID, userID)
	}
	u, err := e.Repo.GetUser(ctx, e.DB, userID)
	if err != nil {
		return domain.User{}, lookupErr(err, "user", userID)
	}
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context, actor domain.Actor, q UserQuery) ([]domain.User, error) {
	if err := e.requireAdmin(actor, policy.ActionManageUsers); err != nil {
		return nil, err
	}
	if q.Role != "" && !q.Role.Valid() {
		return nil, invalidInput("unknown role %q", q.Role).with("field", "role")
	}
	limit := q.Limit
	if limit <= 0 || limit > e.config().Cases.MaxLimit {
		limit = e.config().Cases.MaxLimit
	}
	res, err := e.Repo.ListUsers(ctx, e.DB, repo.UserFilters{
		Role:   q.Role,
		Active: q.Active,
		Search: q.Search,
		Limit:  limit,
		Offset: max(q.Skip, 0),
	})
	if err != nil {
		return nil, err
	}
	return nonNil(res), nil
}

// ResolveActor loads the current identity of a user id. Unknown ids are
// Forbidden so callers cannot probe for accounts.
func (e Engine) ResolveActor(ctx context.Context, userID string) (domain.Actor, error) {
	u, err := e.Repo.GetUser(ctx, e.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, forbidden("unknown actor %s", userID)
	}
	if err != nil {
		return domain.Actor{}, err
	}
	return u.Actor(), nil
}

// ResolveUsername is ResolveActor keyed by login name.
func (e Engine) ResolveUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, e.DB, username)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, forbidden("unknown actor %s", username)
	}
	return u, err
}
