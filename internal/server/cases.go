package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

type casePath struct {
	CaseID string `path:"case_id"`
}

type caseBody struct {
	Body domain.Case `json:"body"`
}

type listCasesInput struct {
	Status        []string `query:"status" doc:"Filter by status; repeat or comma-separate"`
	CategoryID    []string `query:"category_id"`
	ChannelID     []string `query:"channel_id"`
	PublicID      int      `query:"public_id"`
	Subcategory   string   `query:"subcategory"`
	Applicant     string   `query:"applicant" doc:"Substring of applicant name, phone or email"`
	ResponsibleID string   `query:"responsible_id"`
	CreatedFrom   string   `query:"created_from"`
	CreatedTo     string   `query:"created_to"`
	UpdatedFrom   string   `query:"updated_from"`
	UpdatedTo     string   `query:"updated_to"`
	Overdue       bool     `query:"overdue"`
	OrderBy       string   `query:"order_by" doc:"created_at, updated_at, public_id or status; prefix - for descending"`
	Skip          int      `query:"skip" minimum:"0"`
	Limit         int      `query:"limit" minimum:"0"`
}

func (in listCasesInput) query() engine.CaseQuery {
	statuses := make([]domain.Status, 0, len(in.Status))
	for _, s := range in.Status {
		statuses = append(statuses, domain.Status(s))
	}
	return engine.CaseQuery{
		Statuses:      statuses,
		CategoryIDs:   in.CategoryID,
		ChannelIDs:    in.ChannelID,
		PublicID:      in.PublicID,
		Subcategory:   in.Subcategory,
		Applicant:     in.Applicant,
		ResponsibleID: in.ResponsibleID,
		CreatedFrom:   in.CreatedFrom,
		CreatedTo:     in.CreatedTo,
		UpdatedFrom:   in.UpdatedFrom,
		UpdatedTo:     in.UpdatedTo,
		Overdue:       in.Overdue,
		OrderBy:       in.OrderBy,
		Skip:          in.Skip,
		Limit:         in.Limit,
	}
}

var caseErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
}

func registerCases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Register a new case",
		DefaultStatus: http.StatusCreated,
		Errors:        append(caseErrors, http.StatusServiceUnavailable),
	}, func(ctx context.Context, input *struct {
		Body CreateCaseRequest `json:"body"`
	}) (*caseBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCase(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List visible cases",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *listCasesInput) (*struct {
		Body engine.CasePage `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListCases(ctx, actor, input.query())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CasePage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}",
		Summary:     "Case with history and visible comments",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*struct {
		Body engine.CaseDetail `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		detail, err := e.CaseDetail(ctx, actor, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CaseDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-case",
		Method:      http.MethodPatch,
		Path:        "/cases/{case_id}",
		Summary:     "Edit descriptive case fields",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		CaseID string          `path:"case_id"`
		Body   EditCaseRequest `json:"body"`
	}) (*caseBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.EditFields(ctx, actor, input.CaseID, input.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "case-history",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/history",
		Summary:     "Status history in append order",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*struct {
		Body []domain.StatusHistoryEntry `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		h, err := e.HistoryFor(ctx, actor, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.StatusHistoryEntry `json:"body"`
		}{Body: h}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "take-case",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/take",
		Summary:     "Claim a NEW case",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*caseBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.TakeCase(ctx, actor, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-case-status",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/status",
		Summary:     "Move a case to another status",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		CaseID string              `path:"case_id"`
		Body   ChangeStatusRequest `json:"body"`
	}) (*caseBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ChangeStatus(ctx, actor, input.CaseID, input.Body.ToStatus, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-case",
		Method:      http.MethodPatch,
		Path:        "/cases/{case_id}/assign",
		Summary:     "Set or clear the responsible executor",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		CaseID string        `path:"case_id"`
		Body   AssignRequest `json:"body"`
	}) (*caseBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Assign(ctx, actor, input.CaseID, input.Body.ResponsibleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})
}

func registerComments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/comments",
		Summary:       "Comment on a case",
		DefaultStatus: http.StatusCreated,
		Errors:        caseErrors,
	}, func(ctx context.Context, input *struct {
		CaseID string         `path:"case_id"`
		Body   CommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cm, err := e.AddComment(ctx, actor, input.CaseID, input.Body.Text, input.Body.IsInternal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: cm}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/comments",
		Summary:     "Comments visible to the caller",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ListComments(ctx, actor, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: res}, nil
	})
}
