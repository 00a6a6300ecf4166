package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

var adminErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
}

type userBody struct {
	Body domain.User `json:"body"`
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        adminErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*userBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, actor, engine.CreateUserInput(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &userBody{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		Role   string `query:"role" enum:"OPERATOR,EXECUTOR,ADMIN"`
		Active string `query:"active" doc:"true or false; omit for both"`
		Search string `query:"search"`
		Skip   int    `query:"skip" minimum:"0"`
		Limit  int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q := engine.UserQuery{Role: domain.Role(input.Role), Search: input.Search, Skip: input.Skip, Limit: input.Limit}
		if input.Active != "" {
			active := input.Active == "true"
			q.Active = &active
		}
		users, err := e.ListUsers(ctx, actor, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*userBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUser(ctx, actor, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &userBody{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{user_id}",
		Summary:     "Update user profile, role or activity",
		Description: "Demoting or deactivating a user who holds IN_PROGRESS or NEEDS_INFO cases fails with 409 unless force is set.",
		Errors:      append(adminErrors, http.StatusConflict),
	}, func(ctx context.Context, input *struct {
		UserID string            `path:"user_id"`
		Force  bool              `query:"force"`
		Body   UpdateUserRequest `json:"body"`
	}) (*userBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UpdateUser(ctx, actor, input.UserID, input.Body.patch(input.Force))
		if err != nil {
			return nil, handleError(err)
		}
		return &userBody{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-active-cases",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/active-cases",
		Summary:     "List the open cases a user is responsible for",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body ActiveCasesResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cases, err := e.ActiveCases(ctx, actor, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActiveCasesResponse `json:"body"`
		}{Body: ActiveCasesResponse{UserID: input.UserID, ActiveCasesCount: len(cases), Cases: cases}}, nil
	})
}

type listRefsInput struct {
	IncludeInactive bool `query:"include_inactive"`
}

type refPath struct {
	ID   string           `path:"id"`
	Body UpdateRefRequest `json:"body"`
}

func registerRefs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create category",
		DefaultStatus: http.StatusCreated,
		Errors:        adminErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRefRequest `json:"body"`
	}) (*struct {
		Body domain.Category `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCategory(ctx, actor, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Category `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List categories",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *listRefsInput) (*struct {
		Body []domain.Category `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ListCategories(ctx, actor, input.IncludeInactive)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Category `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-category",
		Method:      http.MethodPatch,
		Path:        "/categories/{id}",
		Summary:     "Rename or (de)activate a category",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *refPath) (*struct {
		Body domain.Category `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateCategory(ctx, actor, input.ID, input.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Category `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-channel",
		Method:        http.MethodPost,
		Path:          "/channels",
		Summary:       "Create channel",
		DefaultStatus: http.StatusCreated,
		Errors:        adminErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRefRequest `json:"body"`
	}) (*struct {
		Body domain.Channel `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateChannel(ctx, actor, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Channel `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-channels",
		Method:      http.MethodGet,
		Path:        "/channels",
		Summary:     "List channels",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *listRefsInput) (*struct {
		Body []domain.Channel `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ListChannels(ctx, actor, input.IncludeInactive)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Channel `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-channel",
		Method:      http.MethodPatch,
		Path:        "/channels/{id}",
		Summary:     "Rename or (de)activate a channel",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *refPath) (*struct {
		Body domain.Channel `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateChannel(ctx, actor, input.ID, input.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Channel `json:"body"`
		}{Body: c}, nil
	})
}

type executorPath struct {
	ExecutorID string `path:"executor_id"`
}

type grantPath struct {
	ExecutorID string `path:"executor_id"`
	CategoryID string `path:"category_id"`
}

func registerAccess(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-executor-categories",
		Method:      http.MethodGet,
		Path:        "/executors/{executor_id}/categories",
		Summary:     "Categories granted to an executor",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *executorPath) (*struct {
		Body AccessResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ids, err := e.CategoriesFor(ctx, actor, input.ExecutorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccessResponse `json:"body"`
		}{Body: AccessResponse{ExecutorID: input.ExecutorID, CategoryIDs: ids}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-executor-categories",
		Method:      http.MethodPut,
		Path:        "/executors/{executor_id}/categories",
		Summary:     "Replace an executor's category grants",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		ExecutorID string               `path:"executor_id"`
		Body       ReplaceAccessRequest `json:"body"`
	}) (*struct {
		Body AccessResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ids, err := e.ReplaceAccess(ctx, actor, input.ExecutorID, input.Body.CategoryIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccessResponse `json:"body"`
		}{Body: AccessResponse{ExecutorID: input.ExecutorID, CategoryIDs: nonNilSlice(ids)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-executor-category",
		Method:      http.MethodPost,
		Path:        "/executors/{executor_id}/categories/{category_id}",
		Summary:     "Grant one category",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *grantPath) (*struct {
		Body GrantResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		created, err := e.GrantAccess(ctx, actor, input.ExecutorID, input.CategoryID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GrantResponse `json:"body"`
		}{Body: GrantResponse{ExecutorID: input.ExecutorID, CategoryID: input.CategoryID, Created: created}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-executor-category",
		Method:        http.MethodDelete,
		Path:          "/executors/{executor_id}/categories/{category_id}",
		Summary:       "Revoke one category",
		DefaultStatus: http.StatusNoContent,
		Errors:        adminErrors,
	}, func(ctx context.Context, input *grantPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAccess(ctx, actor, input.ExecutorID, input.CategoryID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
