package server

import (
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

// Request payloads

type CreateCaseRequest struct {
	CategoryID     string  `json:"category_id"`
	ChannelID      string  `json:"channel_id"`
	Subcategory    *string `json:"subcategory,omitempty"`
	ApplicantName  string  `json:"applicant_name" maxLength:"200"`
	ApplicantPhone *string `json:"applicant_phone,omitempty"`
	ApplicantEmail *string `json:"applicant_email,omitempty"`
	Summary        string  `json:"summary"`
}

func (r CreateCaseRequest) input() engine.CreateCaseInput {
	return engine.CreateCaseInput{
		CategoryID:     r.CategoryID,
		ChannelID:      r.ChannelID,
		Subcategory:    r.Subcategory,
		ApplicantName:  r.ApplicantName,
		ApplicantPhone: r.ApplicantPhone,
		ApplicantEmail: r.ApplicantEmail,
		Summary:        r.Summary,
	}
}

type EditCaseRequest struct {
	CategoryID     *string `json:"category_id,omitempty"`
	ChannelID      *string `json:"channel_id,omitempty"`
	Subcategory    *string `json:"subcategory,omitempty"`
	ApplicantName  *string `json:"applicant_name,omitempty"`
	ApplicantPhone *string `json:"applicant_phone,omitempty"`
	ApplicantEmail *string `json:"applicant_email,omitempty"`
	Summary        *string `json:"summary,omitempty"`
}

func (r EditCaseRequest) patch() engine.CaseFieldsPatch {
	return engine.CaseFieldsPatch(r)
}

type ChangeStatusRequest struct {
	ToStatus domain.Status `json:"to_status" enum:"NEW,IN_PROGRESS,NEEDS_INFO,REJECTED,DONE"`
	Comment  string        `json:"comment,omitempty"`
}

// AssignRequest sets the responsible party; omit or null to unassign.
type AssignRequest struct {
	ResponsibleID *string `json:"responsible_id,omitempty" nullable:"true"`
}

type CommentRequest struct {
	Text       string `json:"text"`
	IsInternal bool   `json:"is_internal,omitempty"`
}

type CreateUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	FullName string      `json:"full_name"`
	Role     domain.Role `json:"role" enum:"OPERATOR,EXECUTOR,ADMIN"`
}

type UpdateUserRequest struct {
	Email    *string      `json:"email,omitempty"`
	FullName *string      `json:"full_name,omitempty"`
	Role     *domain.Role `json:"role,omitempty" enum:"OPERATOR,EXECUTOR,ADMIN"`
	IsActive *bool        `json:"is_active,omitempty"`
}

func (r UpdateUserRequest) patch(force bool) engine.UserPatch {
	return engine.UserPatch{Email: r.Email, FullName: r.FullName, Role: r.Role, IsActive: r.IsActive, Force: force}
}

type ActiveCasesResponse struct {
	UserID           string        `json:"user_id"`
	ActiveCasesCount int           `json:"active_cases_count"`
	Cases            []domain.Case `json:"cases"`
}

type CreateRefRequest struct {
	Name string `json:"name"`
}

type UpdateRefRequest struct {
	Name     *string `json:"name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (r UpdateRefRequest) patch() engine.RefPatch {
	return engine.RefPatch(r)
}

type ReplaceAccessRequest struct {
	CategoryIDs []string `json:"category_ids"`
}

type DevTokenRequest struct {
	Username string `json:"username"`
}

// Response payloads

type MeResponse struct {
	User        domain.User `json:"user"`
	CategoryIDs []string    `json:"category_ids"`
}

type TokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

type AccessResponse struct {
	ExecutorID  string   `json:"executor_id"`
	CategoryIDs []string `json:"category_ids"`
}

type GrantResponse struct {
	ExecutorID string `json:"executor_id"`
	CategoryID string `json:"category_id"`
	Created    bool   `json:"created"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
