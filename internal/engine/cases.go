package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/notify"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/repo"
)

// CreateCaseInput carries the operator-supplied fields of a new case.
type CreateCaseInput struct {
	CategoryID     string
	ChannelID      string
	Subcategory    *string
	ApplicantName  string
	ApplicantPhone *string
	ApplicantEmail *string
	Summary        string
}

// CaseFieldsPatch lists descriptive fields to overwrite; nil leaves a field
// unchanged and an empty string clears an optional one.
type CaseFieldsPatch struct {
	CategoryID     *string
	ChannelID      *string
	Subcategory    *string
	ApplicantName  *string
	ApplicantPhone *string
	ApplicantEmail *string
	Summary        *string
}

func (p CaseFieldsPatch) empty() bool {
	return p.CategoryID == nil && p.ChannelID == nil && p.Subcategory == nil && p.ApplicantName == nil &&
		p.ApplicantPhone == nil && p.ApplicantEmail == nil && p.Summary == nil
}

func (e Engine) CreateCase(ctx context.Context, actor domain.Actor, in CreateCaseInput) (domain.Case, error) {
	if err := requireActive(actor); err != nil {
		return domain.Case{}, err
	}
	if !policy.Can(policy.Subject{Actor: actor}, policy.ActionCreateCase, nil) {
		return domain.Case{}, forbidden("only operators create cases")
	}
	name, err := requireText("applicant_name", in.ApplicantName, applicantNameMax)
	if err != nil {
		return domain.Case{}, err
	}
	summary, err := requireText("summary", in.Summary, summaryMax)
	if err != nil {
		return domain.Case{}, err
	}
	subcategory, err := optionalText("subcategory", in.Subcategory, subcategoryMax)
	if err != nil {
		return domain.Case{}, err
	}
	phone, err := optionalText("applicant_phone", in.ApplicantPhone, phoneMax)
	if err != nil {
		return domain.Case{}, err
	}
	email, err := optionalEmail("applicant_email", in.ApplicantEmail)
	if err != nil {
		return domain.Case{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	if err := e.requireActiveRefs(ctx, tx, in.CategoryID, in.ChannelID); err != nil {
		return domain.Case{}, err
	}
	now := e.nowString()
	c := domain.Case{
		ID:             uuid.NewString(),
		CategoryID:     in.CategoryID,
		ChannelID:      in.ChannelID,
		AuthorID:       actor.ID,
		Subcategory:    subcategory,
		ApplicantName:  name,
		ApplicantPhone: phone,
		ApplicantEmail: email,
		Summary:        summary,
		Status:         domain.StatusNew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	attempts := e.config().Cases.PublicIDAttempts
	inserted := false
	for i := 0; i < attempts && !inserted; i++ {
		c.PublicID = e.PublicID()
		if c.PublicID < publicIDMin || c.PublicID > publicIDMax {
			return domain.Case{}, fmt.Errorf("public id generator returned %d", c.PublicID)
		}
		inserted, err = e.Repo.InsertCase(ctx, tx, c)
		if err != nil {
			return domain.Case{}, fmt.Errorf("insert case: %w", err)
		}
	}
	if !inserted {
		e.Log.Error().Int("attempts", attempts).Str("author_id", actor.ID).Msg("public id space exhausted")
		return domain.Case{}, newError(KindResourceExhausted, "", "could not allocate a unique public id after %d attempts", attempts)
	}
	if _, err := e.ledger().Append(ctx, tx, c.ID, actor.ID, nil, domain.StatusNew); err != nil {
		return domain.Case{}, err
	}
	executors, err := e.Repo.ActiveExecutorIDsForCategory(ctx, tx, c.CategoryID)
	if err != nil {
		return domain.Case{}, err
	}
	admins, err := e.Repo.ActiveUserIDsByRole(ctx, tx, domain.RoleAdmin)
	if err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	e.Log.Debug().Str("case_id", c.ID).Int("public_id", c.PublicID).Msg("case created")
	e.publish(ctx, newEvent(notify.TypeNewCase, c, recipients(actor.ID, append(executors, admins...)...), map[string]any{
		"category_id": c.CategoryID,
		"author_id":   c.AuthorID,
	}))
	return c, nil
}

func (e Engine) requireActiveRefs(ctx context.Context, q repo.Querier, categoryID, channelID string) error {
	cat, err := e.Repo.GetCategory(ctx, q, categoryID)
	if errors.Is(err, repo.ErrNotFound) {
		return invalidInput("category %s does not exist", categoryID).with("field", "category_id")
	}
	if err != nil {
		return err
	}
	if !cat.IsActive {
		return invalidInput("category %s is inactive", cat.Name).with("field", "category_id")
	}
	ch, err := e.Repo.GetChannel(ctx, q, channelID)
	if errors.Is(err, repo.ErrNotFound) {
		return invalidInput("channel %s does not exist", channelID).with("field", "channel_id")
	}
	if err != nil {
		return err
	}
	if !ch.IsActive {
		return invalidInput("channel %s is inactive", ch.Name).with("field", "channel_id")
	}
	return nil
}

// TakeCase claims a NEW case. Of several concurrent takers exactly one wins;
// the rest observe InvalidState.
func (e Engine) TakeCase(ctx context.Context, actor domain.Actor, caseID string) (domain.Case, error) {
	if err := requireActive(actor); err != nil {
		return domain.Case{}, err
	}
	if actor.Role == domain.RoleOperator {
		return domain.Case{}, forbidden("operators cannot take cases")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCase(ctx, tx, caseID)
	if err != nil {
		return domain.Case{}, lookupErr(err, "case", caseID)
	}
	if c.Status != domain.StatusNew {
		return domain.Case{}, invalidState("case %d is %s, only NEW cases can be taken", c.PublicID, c.Status).with("status", c.Status)
	}
	s, err := e.subject(ctx, tx, actor)
	if err != nil {
		return domain.Case{}, err
	}
	if !policy.Can(s, policy.ActionTakeCase, &c) {
		return domain.Case{}, forbidden("actor %s may not take case %d", actor.ID, c.PublicID)
	}
	from := repo.CaseState{Status: c.Status, ResponsibleID: c.ResponsibleID}
	to := repo.CaseState{Status: domain.StatusInProgress, ResponsibleID: &actor.ID}
	if err := e.swap(ctx, tx, &c, from, to); err != nil {
		return domain.Case{}, err
	}
	if _, err := e.ledger().Append(ctx, tx, c.ID, actor.ID, &from.Status, to.Status); err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	e.Log.Debug().Str("case_id", c.ID).Str("executor_id", actor.ID).Msg("case taken")
	e.publish(ctx, newEvent(notify.TypeCaseTaken, c, recipients(actor.ID, c.AuthorID), map[string]any{
		"executor_id": actor.ID,
		"old_status":  from.Status,
		"new_status":  to.Status,
	}))
	return c, nil
}

// swap applies a compare-and-swap state change and mirrors it onto c.
func (e Engine) swap(ctx context.Context, tx *sql.Tx, c *domain.Case, from, to repo.CaseState) error {
	now := e.nowString()
	ok, err := e.Repo.SwapCaseState(ctx, tx, c.ID, from, to, now)
	if err != nil {
		return fmt.Errorf("update case state: %w", err)
	}
	if !ok {
		return invalidState("case %d was changed concurrently", c.PublicID)
	}
	c.Status = to.Status
	c.ResponsibleID = optionalString(to.ResponsibleID)
	c.UpdatedAt = now
	return nil
}

// ChangeStatus moves a case along the lifecycle. Non-admins need a justification
// comment, which is stored as an internal comment in the same transaction.
func (e Engine) ChangeStatus(ctx context.Context, actor domain.Actor, caseID string, to domain.Status, comment string) (domain.Case, error) {
	if err := requireActive(actor); err != nil {
		return domain.Case{}, err
	}
	if actor.Role == domain.RoleOperator {
		return domain.Case{}, forbidden("operators cannot change case status")
	}
	if !to.Valid() {
		return domain.Case{}, invalidInput("unknown status %q", to).with("field", "to_status")
	}
	admin := actor.Role == domain.RoleAdmin
	var text string
	var err error
	switch {
	case !admin:
		text, err = validateCommentText(comment, statusCommentMin, statusCommentMax, "comment")
	case strings.TrimSpace(comment) != "":
		text, err = validateCommentText(comment, 1, statusCommentMax, "comment")
	}
	if err != nil {
		return domain.Case{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	s, err := e.subject(ctx, tx, actor)
	if err != nil {
		return domain.Case{}, err
	}
	c, err := e.loadVisibleCase(ctx, tx, s, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	if !admin && c.Status.Terminal() {
		return domain.Case{}, invalidState("case %d is %s and closed for changes", c.PublicID, c.Status).with("status", c.Status)
	}
	if !policy.Can(s, policy.ActionChangeStatus, &c) {
		return domain.Case{}, forbidden("only the responsible executor can change the status of case %d", c.PublicID)
	}
	if !policy.AllowedTransition(actor.Role, c.Status, to) {
		return domain.Case{}, invalidState("transition %s -> %s is not allowed", c.Status, to).
			with("from", c.Status).with("to", to).with("allowed", policy.NextStatuses(actor.Role, c.Status))
	}
	from := repo.CaseState{Status: c.Status, ResponsibleID: c.ResponsibleID}
	next := repo.CaseState{Status: to, ResponsibleID: c.ResponsibleID}
	switch {
	case to == domain.StatusNew:
		next.ResponsibleID = nil
	case admin && c.ResponsibleID == nil && !to.Terminal():
		next.ResponsibleID = &actor.ID
	}
	previousResponsible := c.Responsible()
	if err := e.swap(ctx, tx, &c, from, next); err != nil {
		return domain.Case{}, err
	}
	if _, err := e.ledger().Append(ctx, tx, c.ID, actor.ID, &from.Status, to); err != nil {
		return domain.Case{}, err
	}
	if text != "" {
		if err := e.Repo.InsertComment(ctx, tx, domain.Comment{
			ID:         uuid.NewString(),
			CaseID:     c.ID,
			AuthorID:   actor.ID,
			Text:       text,
			IsInternal: true,
			CreatedAt:  c.UpdatedAt,
		}); err != nil {
			return domain.Case{}, fmt.Errorf("insert status comment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	e.Log.Debug().Str("case_id", c.ID).Str("from", string(from.Status)).Str("to", string(to)).Msg("case status changed")
	e.publish(ctx, newEvent(notify.TypeStatusChanged, c, recipients(actor.ID, c.AuthorID, previousResponsible), map[string]any{
		"changed_by": actor.ID,
		"old_status": from.Status,
		"new_status": to,
		"comment":    text,
	}))
	return c, nil
}

// Assign sets or clears the responsible party. Assigning a NEW case starts it;
// clearing the responsible of an open case returns it to the NEW pool.
func (e Engine) Assign(ctx context.Context, actor domain.Actor, caseID string, responsibleID *string) (domain.Case, error) {
	if err := requireActive(actor); err != nil {
		return domain.Case{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Case{}, forbidden("only admins assign cases")
	}
	if responsibleID != nil && strings.TrimSpace(*responsibleID) == "" {
		responsibleID = nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	s, err := e.subject(ctx, tx, actor)
	if err != nil {
		return domain.Case{}, err
	}
	c, err := e.loadVisibleCase(ctx, tx, s, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	if !policy.Can(s, policy.ActionAssignCase, &c) {
		return domain.Case{}, forbidden("only admins assign cases")
	}
	from := repo.CaseState{Status: c.Status, ResponsibleID: c.ResponsibleID}
	next := from
	if responsibleID != nil {
		u, err := e.Repo.GetUser(ctx, tx, *responsibleID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Case{}, invalidInput("user %s does not exist", *responsibleID).with("field", "responsible_id")
		}
		if err != nil {
			return domain.Case{}, err
		}
		if u.Role != domain.RoleExecutor && u.Role != domain.RoleAdmin {
			return domain.Case{}, invalidInput("user %s is %s, only executors and admins can be responsible", u.Username, u.Role).with("field", "responsible_id")
		}
		if !u.IsActive {
			return domain.Case{}, invalidInput("user %s is inactive", u.Username).with("field", "responsible_id")
		}
		next.ResponsibleID = &u.ID
		if c.Status == domain.StatusNew {
			next.Status = domain.StatusInProgress
		}
	} else {
		if c.Status.Terminal() {
			return domain.Case{}, invalidState("case %d is %s; reopen it before unassigning", c.PublicID, c.Status)
		}
		next.ResponsibleID = nil
		next.Status = domain.StatusNew
	}
	if next.Status == from.Status && c.Responsible() == derefString(next.ResponsibleID) {
		return c, nil
	}
	previousResponsible := c.Responsible()
	if err := e.swap(ctx, tx, &c, from, next); err != nil {
		return domain.Case{}, err
	}
	if next.Status != from.Status {
		if _, err := e.ledger().Append(ctx, tx, c.ID, actor.ID, &from.Status, next.Status); err != nil {
			return domain.Case{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	payload := map[string]any{
		"assigned_by":          actor.ID,
		"old_status":           from.Status,
		"new_status":           next.Status,
		"previous_responsible": previousResponsible,
	}
	if next.ResponsibleID != nil {
		payload["executor_id"] = *next.ResponsibleID
		e.publish(ctx, newEvent(notify.TypeCaseTaken, c, recipients(actor.ID, c.AuthorID, *next.ResponsibleID, previousResponsible), payload))
	} else {
		e.publish(ctx, newEvent(notify.TypeStatusChanged, c, recipients(actor.ID, c.AuthorID, previousResponsible), payload))
	}
	return c, nil
}

// EditFields overwrites descriptive fields. Status and responsible are never touched.
func (e Engine) EditFields(ctx context.Context, actor domain.Actor, caseID string, patch CaseFieldsPatch) (domain.Case, error) {
	if err := requireActive(actor); err != nil {
		return domain.Case{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Case{}, forbidden("only admins edit case fields")
	}
	if patch.empty() {
		return domain.Case{}, invalidInput("no fields to update")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	s, err := e.subject(ctx, tx, actor)
	if err != nil {
		return domain.Case{}, err
	}
	c, err := e.loadVisibleCase(ctx, tx, s, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	if !policy.Can(s, policy.ActionEditCase, &c) {
		return domain.Case{}, forbidden("only admins edit case fields")
	}
	if patch.CategoryID != nil {
		if _, err := e.Repo.GetCategory(ctx, tx, *patch.CategoryID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Case{}, invalidInput("category %s does not exist", *patch.CategoryID).with("field", "category_id")
			}
			return domain.Case{}, err
		}
		c.CategoryID = *patch.CategoryID
	}
	if patch.ChannelID != nil {
		if _, err := e.Repo.GetChannel(ctx, tx, *patch.ChannelID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Case{}, invalidInput("channel %s does not exist", *patch.ChannelID).with("field", "channel_id")
			}
			return domain.Case{}, err
		}
		c.ChannelID = *patch.ChannelID
	}
	if patch.Subcategory != nil {
		if c.Subcategory, err = optionalText("subcategory", patch.Subcategory, subcategoryMax); err != nil {
			return domain.Case{}, err
		}
	}
	if patch.ApplicantName != nil {
		if c.ApplicantName, err = requireText("applicant_name", *patch.ApplicantName, applicantNameMax); err != nil {
			return domain.Case{}, err
		}
	}
	if patch.ApplicantPhone != nil {
		if c.ApplicantPhone, err = optionalText("applicant_phone", patch.ApplicantPhone, phoneMax); err != nil {
			return domain.Case{}, err
		}
	}
	if patch.ApplicantEmail != nil {
		if c.ApplicantEmail, err = optionalEmail("applicant_email", patch.ApplicantEmail); err != nil {
			return domain.Case{}, err
		}
	}
	if patch.Summary != nil {
		if c.Summary, err = requireText("summary", *patch.Summary, summaryMax); err != nil {
			return domain.Case{}, err
		}
	}
	c.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateCaseFields(ctx, tx, c); err != nil {
		return domain.Case{}, lookupErr(err, "case", caseID)
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
