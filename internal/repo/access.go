package repo

import (
	"context"
	"database/sql"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

// InsertAccess adds the pair and reports whether a row was created.
func (r Repo) InsertAccess(ctx context.Context, tx *sql.Tx, a domain.CategoryAccess) (bool, error) {
	res, err := tx.ExecContext(ctx, r.q(`INSERT INTO category_access(id,executor_id,category_id,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(executor_id, category_id) DO NOTHING`),
		a.ID, a.ExecutorID, a.CategoryID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// DeleteAccess removes the pair and reports whether it existed.
func (r Repo) DeleteAccess(ctx context.Context, tx *sql.Tx, executorID, categoryID string) (bool, error) {
	res, err := tx.ExecContext(ctx, r.q(`DELETE FROM category_access WHERE executor_id=? AND category_id=?`), executorID, categoryID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r Repo) ListAccess(ctx context.Context, q Querier, executorID string) ([]domain.CategoryAccess, error) {
	rows, err := r.reader(q).QueryContext(ctx, r.q(`SELECT id,executor_id,category_id,created_at,updated_at FROM category_access WHERE executor_id=? ORDER BY category_id`), executorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CategoryAccess
	for rows.Next() {
		var a domain.CategoryAccess
		if err := rows.Scan(&a.ID, &a.ExecutorID, &a.CategoryID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CategoryIDsFor(ctx context.Context, q Querier, executorID string) ([]string, error) {
	rows, err := r.reader(q).QueryContext(ctx, r.q(`SELECT category_id FROM category_access WHERE executor_id=? ORDER BY category_id`), executorID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// ActiveExecutorIDsForCategory returns active executors holding access to categoryID.
func (r Repo) ActiveExecutorIDsForCategory(ctx context.Context, q Querier, categoryID string) ([]string, error) {
	rows, err := r.reader(q).QueryContext(ctx, r.q(`SELECT u.id FROM category_access ca
JOIN users u ON u.id=ca.executor_id
WHERE ca.category_id=? AND u.role=? AND u.is_active=?
ORDER BY u.id`), categoryID, string(domain.RoleExecutor), true)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}
