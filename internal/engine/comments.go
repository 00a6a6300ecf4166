package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/notify"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
)

// AddComment attaches a comment to a visible case. Internal comments are
// staff-only and never reach the operator who authored the case.
func (e Engine) AddComment(ctx context.Context, actor domain.Actor, caseID, text string, internal bool) (domain.Comment, error) {
	if err := requireActive(actor); err != nil {
		return domain.Comment{}, err
	}
	if internal && !policy.Can(policy.Subject{Actor: actor}, policy.ActionViewInternal, nil) {
		return domain.Comment{}, forbidden("operators cannot write internal comments")
	}
	body, err := validateCommentText(text, commentMin, commentMax, "text")
	if err != nil {
		return domain.Comment{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	s, err := e.subject(ctx, tx, actor)
	if err != nil {
		return domain.Comment{}, err
	}
	c, err := e.loadVisibleCase(ctx, tx, s, caseID)
	if err != nil {
		return domain.Comment{}, err
	}
	action := policy.ActionComment
	if internal {
		action = policy.ActionCommentInternal
	}
	if !policy.Can(s, action, &c) {
		return domain.Comment{}, forbidden("actor %s may not comment on case %d", actor.ID, c.PublicID)
	}
	cm := domain.Comment{
		ID:         uuid.NewString(),
		CaseID:     c.ID,
		AuthorID:   actor.ID,
		Text:       body,
		IsInternal: internal,
		CreatedAt:  e.nowString(),
	}
	if err := e.Repo.InsertComment(ctx, tx, cm); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	// Public comments reach the author and the responsible party; internal
	// ones reach staff only: the responsible party, the category's executors
	// and admins.
	notified := []string{c.AuthorID, c.Responsible()}
	if internal {
		executors, err := e.Repo.ActiveExecutorIDsForCategory(ctx, tx, c.CategoryID)
		if err != nil {
			return domain.Comment{}, err
		}
		admins, err := e.Repo.ActiveUserIDsByRole(ctx, tx, domain.RoleAdmin)
		if err != nil {
			return domain.Comment{}, err
		}
		notified = append(append([]string{c.Responsible()}, executors...), admins...)
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}

	e.publish(ctx, newEvent(notify.TypeNewComment, c, recipients(actor.ID, notified...), map[string]any{
		"comment_id":  cm.ID,
		"author_id":   actor.ID,
		"is_internal": internal,
	}))
	return cm, nil
}

// ListComments returns a visible case's comments, hiding internal ones from operators.
func (e Engine) ListComments(ctx context.Context, actor domain.Actor, caseID string) ([]domain.Comment, error) {
	c, err := e.GetCase(ctx, actor, caseID)
	if err != nil {
		return nil, err
	}
	includeInternal := policy.Can(policy.Subject{Actor: actor}, policy.ActionViewInternal, nil)
	res, err := e.Repo.ListComments(ctx, e.DB, c.ID, includeInternal)
	if err != nil {
		return nil, err
	}
	return nonNil(res), nil
}
