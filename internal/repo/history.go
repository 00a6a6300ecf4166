package repo

import (
	"context"
	"database/sql"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

// NextHistorySeq returns the next ordinal for a case's ledger. Callers hold the
// case row (via SwapCaseState or InsertCase) in the same tx before calling.
func (r Repo) NextHistorySeq(ctx context.Context, tx *sql.Tx, caseID string) (int, error) {
	var next int
	err := tx.QueryRowContext(ctx, r.q(`SELECT COALESCE(MAX(seq),0)+1 FROM case_status_history WHERE case_id=?`), caseID).Scan(&next)
	return next, err
}

func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, h domain.StatusHistoryEntry) error {
	var old any
	if h.OldStatus != nil {
		old = string(*h.OldStatus)
	}
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO case_status_history(id,case_id,seq,changed_by_id,old_status,new_status,changed_at) VALUES (?,?,?,?,?,?,?)`),
		h.ID, h.CaseID, h.Seq, h.ChangedByID, old, string(h.NewStatus), h.ChangedAt)
	return err
}

// ListHistory returns the ledger of a case in append order.
func (r Repo) ListHistory(ctx context.Context, q Querier, caseID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.reader(q).QueryContext(ctx, r.q(`SELECT id,case_id,seq,changed_by_id,old_status,new_status,changed_at
FROM case_status_history WHERE case_id=? ORDER BY seq ASC`), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistoryEntry
	for rows.Next() {
		var h domain.StatusHistoryEntry
		var old sql.NullString
		var newStatus string
		if err := rows.Scan(&h.ID, &h.CaseID, &h.Seq, &h.ChangedByID, &old, &newStatus, &h.ChangedAt); err != nil {
			return nil, err
		}
		if old.Valid {
			s := domain.Status(old.String)
			h.OldStatus = &s
		}
		h.NewStatus = domain.Status(newStatus)
		res = append(res, h)
	}
	return res, rows.Err()
}
