package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

// Categories and channels are flat lookup tables with the same columns.
type refRow struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt string
	UpdatedAt string
}

const (
	tableCategories = "categories"
	tableChannels   = "channels"
)

func (r Repo) insertRef(ctx context.Context, tx *sql.Tx, table string, ref refRow) error {
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO `+table+`(id,name,is_active,created_at,updated_at) VALUES (?,?,?,?,?)`),
		ref.ID, ref.Name, ref.IsActive, ref.CreatedAt, ref.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s name %q: %w", table, ref.Name, ErrConflict)
	}
	return err
}

func (r Repo) updateRef(ctx context.Context, tx *sql.Tx, table string, ref refRow) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE `+table+` SET name=?, is_active=?, updated_at=? WHERE id=?`),
		ref.Name, ref.IsActive, ref.UpdatedAt, ref.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s name %q: %w", table, ref.Name, ErrConflict)
	}
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r Repo) getRef(ctx context.Context, q Querier, table, id string) (refRow, error) {
	var ref refRow
	err := r.reader(q).QueryRowContext(ctx, r.q(`SELECT id,name,is_active,created_at,updated_at FROM `+table+` WHERE id=?`), id).
		Scan(&ref.ID, &ref.Name, &ref.IsActive, &ref.CreatedAt, &ref.UpdatedAt)
	if err == sql.ErrNoRows {
		return ref, ErrNotFound
	}
	return ref, err
}

func (r Repo) listRefs(ctx context.Context, q Querier, table string, includeInactive bool) ([]refRow, error) {
	query := `SELECT id,name,is_active,created_at,updated_at FROM ` + table
	var args []any
	if !includeInactive {
		query += ` WHERE is_active=?`
		args = append(args, true)
	}
	query += ` ORDER BY name ASC`
	rows, err := r.reader(q).QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []refRow
	for rows.Next() {
		var ref refRow
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.IsActive, &ref.CreatedAt, &ref.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, ref)
	}
	return res, rows.Err()
}

func categoryFromRef(ref refRow) domain.Category {
	return domain.Category{ID: ref.ID, Name: ref.Name, IsActive: ref.IsActive, CreatedAt: ref.CreatedAt, UpdatedAt: ref.UpdatedAt}
}

func channelFromRef(ref refRow) domain.Channel {
	return domain.Channel{ID: ref.ID, Name: ref.Name, IsActive: ref.IsActive, CreatedAt: ref.CreatedAt, UpdatedAt: ref.UpdatedAt}
}

func (r Repo) InsertCategory(ctx context.Context, tx *sql.Tx, c domain.Category) error {
	return r.insertRef(ctx, tx, tableCategories, refRow(c))
}

func (r Repo) UpdateCategory(ctx context.Context, tx *sql.Tx, c domain.Category) error {
	return r.updateRef(ctx, tx, tableCategories, refRow(c))
}

func (r Repo) GetCategory(ctx context.Context, q Querier, id string) (domain.Category, error) {
	ref, err := r.getRef(ctx, q, tableCategories, id)
	return categoryFromRef(ref), err
}

func (r Repo) ListCategories(ctx context.Context, q Querier, includeInactive bool) ([]domain.Category, error) {
	refs, err := r.listRefs(ctx, q, tableCategories, includeInactive)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Category, 0, len(refs))
	for _, ref := range refs {
		res = append(res, categoryFromRef(ref))
	}
	return res, nil
}

func (r Repo) InsertChannel(ctx context.Context, tx *sql.Tx, c domain.Channel) error {
	return r.insertRef(ctx, tx, tableChannels, refRow(c))
}

func (r Repo) UpdateChannel(ctx context.Context, tx *sql.Tx, c domain.Channel) error {
	return r.updateRef(ctx, tx, tableChannels, refRow(c))
}

func (r Repo) GetChannel(ctx context.Context, q Querier, id string) (domain.Channel, error) {
	ref, err := r.getRef(ctx, q, tableChannels, id)
	return channelFromRef(ref), err
}

func (r Repo) ListChannels(ctx context.Context, q Querier, includeInactive bool) ([]domain.Channel, error) {
	refs, err := r.listRefs(ctx, q, tableChannels, includeInactive)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Channel, 0, len(refs))
	for _, ref := range refs {
		res = append(res, channelFromRef(ref))
	}
	return res, nil
}
