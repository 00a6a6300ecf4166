// Package ledger is the append-only status history of cases.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/repo"
)

type Ledger struct {
	Repo repo.Repo
	Now  func() time.Time
}

// Append records one transition. It must run in the tx that mutated the case.
func (l Ledger) Append(ctx context.Context, tx *sql.Tx, caseID, actorID string, oldStatus *domain.Status, newStatus domain.Status) (domain.StatusHistoryEntry, error) {
	if tx == nil {
		return domain.StatusHistoryEntry{}, fmt.Errorf("ledger append requires a transaction")
	}
	if l.Now == nil {
		l.Now = time.Now
	}
	seq, err := l.Repo.NextHistorySeq(ctx, tx, caseID)
	if err != nil {
		return domain.StatusHistoryEntry{}, fmt.Errorf("next history seq: %w", err)
	}
	entry := domain.StatusHistoryEntry{
		ID:          uuid.NewString(),
		CaseID:      caseID,
		Seq:         seq,
		ChangedByID: actorID,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
		ChangedAt:   domain.FormatTime(l.Now()),
	}
	if err := l.Repo.InsertHistory(ctx, tx, entry); err != nil {
		return domain.StatusHistoryEntry{}, fmt.Errorf("append history: %w", err)
	}
	return entry, nil
}

func (l Ledger) HistoryFor(ctx context.Context, q repo.Querier, caseID string) ([]domain.StatusHistoryEntry, error) {
	return l.Repo.ListHistory(ctx, q, caseID)
}

// Replay folds entries from an empty start and returns the resulting status.
// It fails when the chain is broken: a first entry that is not a creation,
// or an entry whose old status differs from the previous new status.
func Replay(entries []domain.StatusHistoryEntry) (domain.Status, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("empty history")
	}
	var current *domain.Status
	for i, e := range entries {
		switch {
		case current == nil && e.OldStatus != nil:
			return "", fmt.Errorf("entry %d: history must start from no status, got %s", i, *e.OldStatus)
		case current == nil && e.NewStatus != domain.StatusNew:
			return "", fmt.Errorf("entry %d: history must start at %s", i, domain.StatusNew)
		case current != nil && (e.OldStatus == nil || *e.OldStatus != *current):
			return "", fmt.Errorf("entry %d: expected old status %s", i, *current)
		}
		next := e.NewStatus
		current = &next
	}
	return *current, nil
}
