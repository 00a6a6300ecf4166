package engine

import (
	"context"
	"database/sql"
	"slices"

	"github.com/google/uuid"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/repo"
)

func (e Engine) requireAdmin(actor domain.Actor, action policy.Action) error {
	if err := requireActive(actor); err != nil {
		return err
	}
	if !policy.Can(policy.Subject{Actor: actor}, action, nil) {
		return forbidden("%s requires the ADMIN role", action)
	}
	return nil
}

// executorFor loads userID and checks it can hold category grants.
func (e Engine) executorFor(ctx context.Context, q repo.Querier, userID string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, q, userID)
	if err != nil {
		return domain.User{}, lookupErr(err, "user", userID)
	}
	if u.Role != domain.RoleExecutor {
		return domain.User{}, newError(KindInvalidInput, "invalid_role", "user %s is %s; category access applies to executors only", u.Username, u.Role).
			with("role", u.Role)
	}
	return u, nil
}

func (e Engine) categoryExists(ctx context.Context, q repo.Querier, categoryID string) error {
	if _, err := e.Repo.GetCategory(ctx, q, categoryID); err != nil {
		return lookupErr(err, "category", categoryID)
	}
	return nil
}

// GrantAccess adds one category to an executor's grants. Granting an existing
// pair is a no-op that reports created=false.
func (e Engine) GrantAccess(ctx context.Context, actor domain.Actor, executorID, categoryID string) (bool, error) {
	if err := e.requireAdmin(actor, policy.ActionManageAccess); err != nil {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := e.executorFor(ctx, tx, executorID); err != nil {
		return false, err
	}
	if err := e.categoryExists(ctx, tx, categoryID); err != nil {
		return false, err
	}
	created, err := e.insertAccess(ctx, tx, executorID, categoryID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	e.Log.Info().Str("executor_id", executorID).Str("category_id", categoryID).Bool("created", created).Msg("category access granted")
	return created, nil
}

func (e Engine) insertAccess(ctx context.Context, tx *sql.Tx, executorID, categoryID string) (bool, error) {
	now := e.nowString()
	return e.Repo.InsertAccess(ctx, tx, domain.CategoryAccess{
		ID:         uuid.NewString(),
		ExecutorID: executorID,
		CategoryID: categoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// RevokeAccess removes one grant. A missing pair is NotFound.
func (e Engine) RevokeAccess(ctx context.Context, actor domain.Actor, executorID, categoryID string) error {
	if err := e.requireAdmin(actor, policy.ActionManageAccess); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Repo.DeleteAccess(ctx, tx, executorID, categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("executor %s has no access to category %s", executorID, categoryID).
			with("executor_id", executorID).with("category_id", categoryID)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Log.Info().Str("executor_id", executorID).Str("category_id", categoryID).Msg("category access revoked")
	return nil
}

// ReplaceAccess sets an executor's grants to exactly categoryIDs in one
// transaction and returns the resulting set.
func (e Engine) ReplaceAccess(ctx context.Context, actor domain.Actor, executorID string, categoryIDs []string) ([]string, error) {
	if err := e.requireAdmin(actor, policy.ActionManageAccess); err != nil {
		return nil, err
	}
	want := slices.Clone(categoryIDs)
	slices.Sort(want)
	want = slices.Compact(want)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := e.executorFor(ctx, tx, executorID); err != nil {
		return nil, err
	}
	for _, id := range want {
		if err := e.categoryExists(ctx, tx, id); err != nil {
			return nil, err
		}
	}
	have, err := e.Repo.CategoryIDsFor(ctx, tx, executorID)
	if err != nil {
		return nil, err
	}
	for _, id := range have {
		if slices.Contains(want, id) {
			continue
		}
		if _, err := e.Repo.DeleteAccess(ctx, tx, executorID, id); err != nil {
			return nil, err
		}
	}
	for _, id := range want {
		if slices.Contains(have, id) {
			continue
		}
		if _, err := e.insertAccess(ctx, tx, executorID, id); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.Log.Info().Str("executor_id", executorID).Strs("category_ids", want).Msg("category access replaced")
	return want, nil
}

// CategoriesFor lists the category ids an executor has been granted. Executors
// may read their own grants; admins may read anyone's.
func (e Engine) CategoriesFor(ctx context.Context, actor domain.Actor, executorID string) ([]string, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && actor.ID != executorID {
		return nil, forbidden("actor %s may not read grants of %s", actor.ID, executorID)
	}
	if _, err := e.Repo.GetUser(ctx, e.DB, executorID); err != nil {
		return nil, lookupErr(err, "user", executorID)
	}
	ids, err := e.Repo.CategoryIDsFor(ctx, e.DB, executorID)
	if err != nil {
		return nil, err
	}
	return nonNil(ids), nil
}

// ListAccess returns the grant rows for an executor.
func (e Engine) ListAccess(ctx context.Context, actor domain.Actor, executorID string) ([]domain.CategoryAccess, error) {
	if err := e.requireAdmin(actor, policy.ActionManageAccess); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetUser(ctx, e.DB, executorID); err != nil {
		return nil, lookupErr(err, "user", executorID)
	}
	rows, err := e.Repo.ListAccess(ctx, e.DB, executorID)
	if err != nil {
		return nil, err
	}
	return nonNil(rows), nil
}
