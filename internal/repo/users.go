package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

const userColumns = `id,username,email,full_name,role,is_active,created_at,updated_at`

type UserFilters struct {
	Role   domain.Role
	Active *bool
	Search string
	Limit  int
	Offset int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.Role = domain.Role(role)
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?,?)`),
		u.ID, u.Username, u.Email, u.FullName, string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("username %s: %w", u.Username, ErrConflict)
	}
	return err
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE users SET email=?, full_name=?, role=?, is_active=?, updated_at=? WHERE id=?`),
		u.Email, u.FullName, string(u.Role), u.IsActive, u.UpdatedAt, u.ID)
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

func (r Repo) GetUser(ctx context.Context, q Querier, id string) (domain.User, error) {
	return scanUser(r.reader(q).QueryRowContext(ctx, r.q(`SELECT `+userColumns+` FROM users WHERE id=?`), id))
}

func (r Repo) GetUserByUsername(ctx context.Context, q Querier, username string) (domain.User, error) {
	return scanUser(r.reader(q).QueryRowContext(ctx, r.q(`SELECT `+userColumns+` FROM users WHERE username=?`), username))
}

func (r Repo) ListUsers(ctx context.Context, q Querier, f UserFilters) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any
	if f.Role != "" {
		query += ` AND role=?`
		args = append(args, string(f.Role))
	}
	if f.Active != nil {
		query += ` AND is_active=?`
		args = append(args, *f.Active)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		query += ` AND (LOWER(username) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?)`
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like, like)
	}
	query += ` ORDER BY username ASC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.reader(q).QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// ActiveUserIDsByRole returns ids of active users holding role.
func (r Repo) ActiveUserIDsByRole(ctx context.Context, q Querier, role domain.Role) ([]string, error) {
	rows, err := r.reader(q).QueryContext(ctx, r.q(`SELECT id FROM users WHERE role=? AND is_active=? ORDER BY id`), string(role), true)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func (r Repo) CountUsers(ctx context.Context, q Querier) (int, error) {
	var n int
	err := r.reader(q).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
