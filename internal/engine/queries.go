package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/ledger"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/repo"
)

// CaseQuery is the caller-facing listing filter. Visibility is applied on top
// of it and cannot be widened by any field here.
type CaseQuery struct {
	Statuses      []domain.Status
	CategoryIDs   []string
	ChannelIDs    []string
	PublicID      int
	Subcategory   string
	Applicant     string
	ResponsibleID string
	CreatedFrom   string
	CreatedTo     string
	UpdatedFrom   string
	UpdatedTo     string
	Overdue       bool
	OrderBy       string
	Skip          int
	Limit         int
}

type CasePage struct {
	Items []domain.Case `json:"items"`
	Total int           `json:"total"`
	Skip  int           `json:"skip"`
	Limit int           `json:"limit"`
}

// CaseDetail is a case with the history and comments its viewer may see.
type CaseDetail struct {
	Case     domain.Case                 `json:"case"`
	History  []domain.StatusHistoryEntry `json:"history"`
	Comments []domain.Comment            `json:"comments"`
	Overdue  bool                        `json:"overdue"`
}

func (e Engine) GetCase(ctx context.Context, actor domain.Actor, caseID string) (domain.Case, error) {
	if err := requireActive(actor); err != nil {
		return domain.Case{}, err
	}
	s, err := e.subject(ctx, e.DB, actor)
	if err != nil {
		return domain.Case{}, err
	}
	return e.loadVisibleCase(ctx, e.DB, s, caseID)
}

// GetCaseByPublicID resolves the 6-digit public number under the same visibility rules.
func (e Engine) GetCaseByPublicID(ctx context.Context, actor domain.Actor, publicID int) (domain.Case, error) {
	if err := requireActive(actor); err != nil {
		return domain.Case{}, err
	}
	c, err := e.Repo.GetCaseByPublicID(ctx, e.DB, publicID)
	if err != nil {
		return domain.Case{}, lookupErr(err, "case", strconv.Itoa(publicID))
	}
	s, err := e.subject(ctx, e.DB, actor)
	if err != nil {
		return domain.Case{}, err
	}
	if !policy.Visible(s, c) {
		return domain.Case{}, forbidden("case %d is outside the visible set of %s", publicID, actor.ID)
	}
	return c, nil
}

func (e Engine) CaseDetail(ctx context.Context, actor domain.Actor, caseID string) (CaseDetail, error) {
	c, err := e.GetCase(ctx, actor, caseID)
	if err != nil {
		return CaseDetail{}, err
	}
	history, err := e.ledger().HistoryFor(ctx, e.DB, c.ID)
	if err != nil {
		return CaseDetail{}, err
	}
	comments, err := e.Repo.ListComments(ctx, e.DB, c.ID, policy.Can(policy.Subject{Actor: actor}, policy.ActionViewInternal, nil))
	if err != nil {
		return CaseDetail{}, err
	}
	return CaseDetail{
		Case:     c,
		History:  nonNil(history),
		Comments: nonNil(comments),
		Overdue:  e.isOverdue(c),
	}, nil
}

func (e Engine) overdueCutoff() time.Time {
	return e.now().Add(-time.Duration(e.config().Cases.OverdueDays) * 24 * time.Hour)
}

// isOverdue reports whether an open case has waited longer than the configured days.
func (e Engine) isOverdue(c domain.Case) bool {
	if c.Status.Terminal() {
		return false
	}
	return c.CreatedAt < domain.FormatTime(e.overdueCutoff())
}

// ListCases applies the actor's visibility scope first, then the query filters,
// then pagination.
func (e Engine) ListCases(ctx context.Context, actor domain.Actor, q CaseQuery) (CasePage, error) {
	if err := requireActive(actor); err != nil {
		return CasePage{}, err
	}
	cfg := e.config()
	limit := q.Limit
	if limit <= 0 {
		limit = cfg.Cases.DefaultLimit
	}
	if limit > cfg.Cases.MaxLimit {
		limit = cfg.Cases.MaxLimit
	}
	if q.Skip < 0 {
		return CasePage{}, invalidInput("skip must not be negative").with("field", "skip")
	}
	for _, st := range q.Statuses {
		if !st.Valid() {
			return CasePage{}, invalidInput("unknown status %q", st).with("field", "statuses")
		}
	}
	if !repo.ValidCaseOrder(q.OrderBy) {
		return CasePage{}, invalidInput("cannot order by %q", q.OrderBy).with("field", "order_by")
	}
	bounds := map[string]*string{
		"created_from": &q.CreatedFrom,
		"created_to":   &q.CreatedTo,
		"updated_from": &q.UpdatedFrom,
		"updated_to":   &q.UpdatedTo,
	}
	for field, v := range bounds {
		norm, err := normalizeBound(field, *v)
		if err != nil {
			return CasePage{}, err
		}
		*v = norm
	}
	s, err := e.subject(ctx, e.DB, actor)
	if err != nil {
		return CasePage{}, err
	}
	f := repo.CaseFilters{
		Scope:         policy.ScopeFor(s),
		Statuses:      q.Statuses,
		CategoryIDs:   q.CategoryIDs,
		ChannelIDs:    q.ChannelIDs,
		PublicID:      q.PublicID,
		Subcategory:   q.Subcategory,
		Applicant:     q.Applicant,
		ResponsibleID: q.ResponsibleID,
		CreatedFrom:   q.CreatedFrom,
		CreatedTo:     q.CreatedTo,
		UpdatedFrom:   q.UpdatedFrom,
		UpdatedTo:     q.UpdatedTo,
		OrderBy:       q.OrderBy,
		Offset:        q.Skip,
		Limit:         limit,
	}
	if q.Overdue {
		f.OverdueBefore = domain.FormatTime(e.overdueCutoff())
	}
	items, total, err := e.Repo.ListCases(ctx, e.DB, f)
	if err != nil {
		return CasePage{}, err
	}
	return CasePage{Items: nonNil(items), Total: total, Skip: q.Skip, Limit: limit}, nil
}

// normalizeBound accepts RFC3339 timestamps or plain dates and renders them in
// the stored layout. A bare date used as an upper bound covers the whole day.
func normalizeBound(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return domain.FormatTime(t), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return "", invalidInput("%s must be a date or RFC3339 timestamp", field).with("field", field)
	}
	if strings.HasSuffix(field, "_to") {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return domain.FormatTime(t), nil
}

// HistoryFor returns a case's status history in append order.
func (e Engine) HistoryFor(ctx context.Context, actor domain.Actor, caseID string) ([]domain.StatusHistoryEntry, error) {
	c, err := e.GetCase(ctx, actor, caseID)
	if err != nil {
		return nil, err
	}
	entries, err := e.ledger().HistoryFor(ctx, e.DB, c.ID)
	if err != nil {
		return nil, err
	}
	return nonNil(entries), nil
}

// VerifyHistory replays a case's ledger and checks it reproduces the stored status.
func (e Engine) VerifyHistory(ctx context.Context, actor domain.Actor, caseID string) error {
	c, err := e.GetCase(ctx, actor, caseID)
	if err != nil {
		return err
	}
	entries, err := e.ledger().HistoryFor(ctx, e.DB, c.ID)
	if err != nil {
		return err
	}
	status, err := ledger.Replay(entries)
	if err != nil {
		return invalidState("case %d history is broken: %v", c.PublicID, err)
	}
	if status != c.Status {
		return invalidState("case %d history ends at %s but case is %s", c.PublicID, status, c.Status)
	}
	return nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
