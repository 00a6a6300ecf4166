package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
)

const caseColumns = `id,public_id,category_id,channel_id,author_id,responsible_id,subcategory,applicant_name,applicant_phone,applicant_email,summary,status,created_at,updated_at`

// CaseState is the mutable part of a case guarded by compare-and-swap.
type CaseState struct {
	Status        domain.Status
	ResponsibleID *string
}

// CaseFilters narrows a listing after the visibility scope is applied.
type CaseFilters struct {
	Scope         policy.Scope
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
	// OverdueBefore selects open cases created before this timestamp.
	OverdueBefore string
	OrderBy       string
	Offset        int
	Limit         int
}

var caseOrderColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"public_id":  "public_id",
	"status":     "status",
}

func scanCase(row rowScanner) (domain.Case, error) {
	var c domain.Case
	var responsible, subcategory, phone, email sql.NullString
	var status string
	err := row.Scan(&c.ID, &c.PublicID, &c.CategoryID, &c.ChannelID, &c.AuthorID, &responsible, &subcategory,
		&c.ApplicantName, &phone, &email, &c.Summary, &status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Status = domain.Status(status)
	c.ResponsibleID = stringPtr(responsible)
	c.Subcategory = stringPtr(subcategory)
	c.ApplicantPhone = stringPtr(phone)
	c.ApplicantEmail = stringPtr(email)
	return c, nil
}

// InsertCase inserts c unless its public id is taken; the bool reports insertion.
func (r Repo) InsertCase(ctx context.Context, tx *sql.Tx, c domain.Case) (bool, error) {
	res, err := tx.ExecContext(ctx, r.q(`INSERT INTO cases(`+caseColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(public_id) DO NOTHING`),
		c.ID, c.PublicID, c.CategoryID, c.ChannelID, c.AuthorID, nullableStringPtr(c.ResponsibleID), nullableStringPtr(c.Subcategory),
		c.ApplicantName, nullableStringPtr(c.ApplicantPhone), nullableStringPtr(c.ApplicantEmail), c.Summary, string(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r Repo) GetCase(ctx context.Context, q Querier, id string) (domain.Case, error) {
	return scanCase(r.reader(q).QueryRowContext(ctx, r.q(`SELECT `+caseColumns+` FROM cases WHERE id=?`), id))
}

func (r Repo) GetCaseByPublicID(ctx context.Context, q Querier, publicID int) (domain.Case, error) {
	return scanCase(r.reader(q).QueryRowContext(ctx, r.q(`SELECT `+caseColumns+` FROM cases WHERE public_id=?`), publicID))
}

// SwapCaseState moves a case from one state to another only if it is still in
// the expected state. A false result means someone else changed it first.
func (r Repo) SwapCaseState(ctx context.Context, tx *sql.Tx, id string, from, to CaseState, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE cases SET status=?, responsible_id=?, updated_at=?
WHERE id=? AND status=? AND COALESCE(responsible_id,'')=?`),
		string(to.Status), nullableStringPtr(to.ResponsibleID), updatedAt,
		id, string(from.Status), derefString(from.ResponsibleID))
	if err != nil {
		return false, err
	}
	return affected(res)
}

// UpdateCaseFields writes descriptive fields only.
func (r Repo) UpdateCaseFields(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE cases SET category_id=?, channel_id=?, subcategory=?, applicant_name=?, applicant_phone=?, applicant_email=?, summary=?, updated_at=?
WHERE id=?`),
		c.CategoryID, c.ChannelID, nullableStringPtr(c.Subcategory), c.ApplicantName, nullableStringPtr(c.ApplicantPhone),
		nullableStringPtr(c.ApplicantEmail), c.Summary, c.UpdatedAt, c.ID)
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

func scopeClause(s policy.Scope) (string, []any) {
	if s.All {
		return "", nil
	}
	var parts []string
	var args []any
	if s.AuthorID != "" {
		parts = append(parts, "author_id = ?")
		args = append(args, s.AuthorID)
	}
	if s.NewPool {
		parts = append(parts, "status = ?")
		args = append(args, string(domain.StatusNew))
	}
	if s.ResponsibleID != "" {
		parts = append(parts, "responsible_id = ?")
		args = append(args, s.ResponsibleID)
	}
	if len(s.CategoryIDs) > 0 {
		parts = append(parts, "category_id IN ("+placeholders(len(s.CategoryIDs))+")")
		args = append(args, stringsToArgs(s.CategoryIDs)...)
	}
	if len(parts) == 0 {
		return "1=0", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func caseWhere(f CaseFilters) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if scope, scopeArgs := scopeClause(f.Scope); scope != "" {
		clauses = append(clauses, scope)
		args = append(args, scopeArgs...)
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if len(f.CategoryIDs) > 0 {
		clauses = append(clauses, "category_id IN ("+placeholders(len(f.CategoryIDs))+")")
		args = append(args, stringsToArgs(f.CategoryIDs)...)
	}
	if len(f.ChannelIDs) > 0 {
		clauses = append(clauses, "channel_id IN ("+placeholders(len(f.ChannelIDs))+")")
		args = append(args, stringsToArgs(f.ChannelIDs)...)
	}
	if f.PublicID > 0 {
		clauses = append(clauses, "public_id = ?")
		args = append(args, f.PublicID)
	}
	if s := strings.TrimSpace(f.Subcategory); s != "" {
		clauses = append(clauses, "LOWER(subcategory) LIKE ?")
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	if s := strings.TrimSpace(f.Applicant); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		clauses = append(clauses, "(LOWER(applicant_name) LIKE ? OR LOWER(COALESCE(applicant_phone,'')) LIKE ? OR LOWER(COALESCE(applicant_email,'')) LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.ResponsibleID != "" {
		clauses = append(clauses, "responsible_id = ?")
		args = append(args, f.ResponsibleID)
	}
	if f.CreatedFrom != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.CreatedFrom)
	}
	if f.CreatedTo != "" {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.CreatedTo)
	}
	if f.UpdatedFrom != "" {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, f.UpdatedFrom)
	}
	if f.UpdatedTo != "" {
		clauses = append(clauses, "updated_at <= ?")
		args = append(args, f.UpdatedTo)
	}
	if f.OverdueBefore != "" {
		clauses = append(clauses, "created_at < ? AND status NOT IN (?,?)")
		args = append(args, f.OverdueBefore, string(domain.StatusDone), string(domain.StatusRejected))
	}
	return strings.Join(clauses, " AND "), args
}

func caseOrder(orderBy string) string {
	orderBy = strings.TrimSpace(orderBy)
	dir := "ASC"
	if strings.HasPrefix(orderBy, "-") {
		dir = "DESC"
		orderBy = orderBy[1:]
	}
	col, ok := caseOrderColumns[orderBy]
	if !ok {
		return "created_at DESC, id DESC"
	}
	return col + " " + dir + ", id " + dir
}

// ValidCaseOrder reports whether orderBy names a sortable column.
func ValidCaseOrder(orderBy string) bool {
	if orderBy == "" {
		return true
	}
	_, ok := caseOrderColumns[strings.TrimPrefix(orderBy, "-")]
	return ok
}

// ListCases returns one page of matching cases and the total match count.
func (r Repo) ListCases(ctx context.Context, q Querier, f CaseFilters) ([]domain.Case, int, error) {
	where, args := caseWhere(f)
	var total int
	if err := r.reader(q).QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM cases WHERE `+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + caseColumns + ` FROM cases WHERE ` + where + ` ORDER BY ` + caseOrder(f.OrderBy)
	pageArgs := append([]any{}, args...)
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(pageArgs, f.Limit, f.Offset)
	}
	rows, err := r.reader(q).QueryContext(ctx, r.q(query), pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, c)
	}
	return res, total, rows.Err()
}

// ActiveCasesFor returns the IN_PROGRESS and NEEDS_INFO cases held by responsibleID.
func (r Repo) ActiveCasesFor(ctx context.Context, q Querier, responsibleID string) ([]domain.Case, error) {
	rows, err := r.reader(q).QueryContext(ctx, r.q(`SELECT `+caseColumns+` FROM cases WHERE responsible_id=? AND status IN (?,?) ORDER BY created_at, id`),
		responsibleID, string(domain.StatusInProgress), string(domain.StatusNeedsInfo))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
