package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/repo"
)

// RefPatch renames or (de)activates a category or channel.
type RefPatch struct {
	Name     *string
	IsActive *bool
}

func duplicateName(kind, name string) error {
	return newError(KindInvalidInput, "duplicate_name", "%s %q already exists", kind, name).with("field", "name")
}

// listInactive reports whether actor may see deactivated reference rows.
func listInactive(actor domain.Actor, requested bool) bool {
	return requested && actor.Role == domain.RoleAdmin
}

func (e Engine) CreateCategory(ctx context.Context, actor domain.Actor, name string) (domain.Category, error) {
	if err := e.requireAdmin(actor, policy.ActionManageRefs); err != nil {
		return domain.Category{}, err
	}
	n, err := requireText("name", name, refNameMax)
	if err != nil {
		return domain.Category{}, err
	}
	now := e.nowString()
	c := domain.Category{ID: uuid.NewString(), Name: n, IsActive: true, CreatedAt: now, UpdatedAt: now}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Category{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCategory(ctx, tx, c); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Category{}, duplicateName("category", n)
		}
		return domain.Category{}, err
	}
	return c, tx.Commit()
}

func (e Engine) UpdateCategory(ctx context.Context, actor domain.Actor, id string, patch RefPatch) (domain.Category, error) {
	if err := e.requireAdmin(actor, policy.ActionManageRefs); err != nil {
		return domain.Category{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Category{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCategory(ctx, tx, id)
	if err != nil {
		return domain.Category{}, lookupErr(err, "category", id)
	}
	if patch.Name != nil {
		if c.Name, err = requireText("name", *patch.Name, refNameMax); err != nil {
			return domain.Category{}, err
		}
	}
	if patch.IsActive != nil {
		c.IsActive = *patch.IsActive
	}
	c.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateCategory(ctx, tx, c); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Category{}, duplicateName("category", c.Name)
		}
		return domain.Category{}, lookupErr(err, "category", id)
	}
	return c, tx.Commit()
}

// ListCategories returns active categories; admins may include inactive ones.
func (e Engine) ListCategories(ctx context.Context, actor domain.Actor, includeInactive bool) ([]domain.Category, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	res, err := e.Repo.ListCategories(ctx, e.DB, listInactive(actor, includeInactive))
	return nonNil(res), err
}

func (e Engine) CreateChannel(ctx context.Context, actor domain.Actor, name string) (domain.Channel, error) {
	if err := e.requireAdmin(actor, policy.ActionManageRefs); err != nil {
		return domain.Channel{}, err
	}
	n, err := requireText("name", name, refNameMax)
	if err != nil {
		return domain.Channel{}, err
	}
	now := e.nowString()
	c := domain.Channel{ID: uuid.NewString(), Name: n, IsActive: true, CreatedAt: now, UpdatedAt: now}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Channel{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertChannel(ctx, tx, c); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Channel{}, duplicateName("channel", n)
		}
		return domain.Channel{}, err
	}
	return c, tx.Commit()
}

func (e Engine) UpdateChannel(ctx context.Context, actor domain.Actor, id string, patch RefPatch) (domain.Channel, error) {
	if err := e.requireAdmin(actor, policy.ActionManageRefs); err != nil {
		return domain.Channel{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Channel{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetChannel(ctx, tx, id)
	if err != nil {
		return domain.Channel{}, lookupErr(err, "channel", id)
	}
	if patch.Name != nil {
		if c.Name, err = requireText("name", *patch.Name, refNameMax); err != nil {
			return domain.Channel{}, err
		}
	}
	if patch.IsActive != nil {
		c.IsActive = *patch.IsActive
	}
	c.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateChannel(ctx, tx, c); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Channel{}, duplicateName("channel", c.Name)
		}
		return domain.Channel{}, lookupErr(err, "channel", id)
	}
	return c, tx.Commit()
}

func (e Engine) ListChannels(ctx context.Context, actor domain.Actor, includeInactive bool) ([]domain.Channel, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	res, err := e.Repo.ListChannels(ctx, e.DB, listInactive(actor, includeInactive))
	return nonNil(res), err
}
