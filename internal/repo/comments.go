package repo

import (
	"context"
	"database/sql"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO comments(id,case_id,author_id,text,is_internal,created_at) VALUES (?,?,?,?,?,?)`),
		c.ID, c.CaseID, c.AuthorID, c.Text, c.IsInternal, c.CreatedAt)
	return err
}

// ListComments returns a case's comments oldest first; internal ones only when asked.
func (r Repo) ListComments(ctx context.Context, q Querier, caseID string, includeInternal bool) ([]domain.Comment, error) {
	query := `SELECT id,case_id,author_id,text,is_internal,created_at FROM comments WHERE case_id=?`
	args := []any{caseID}
	if !includeInternal {
		query += ` AND is_internal=?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.reader(q).QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.CaseID, &c.AuthorID, &c.Text, &c.IsInternal, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
