// Package crmclient is a small HTTP client for the case API.
package crmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
)

// Client talks to one API base URL, e.g. http://127.0.0.1:8080/v1.
type Client struct {
	http *resty.Client
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{http: resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetHeader("Accept", "application/json")}
}

// WithToken sets the bearer token used for every request.
func (c *Client) WithToken(token string) *Client {
	c.http.SetAuthToken(token)
	return c
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

// CaseFilter mirrors the list query parameters.
type CaseFilter struct {
	Statuses    []domain.Status
	CategoryIDs []string
	Applicant   string
	Overdue     bool
	OrderBy     string
	Skip        int
	Limit       int
}

func (f CaseFilter) values() url.Values {
	v := url.Values{}
	for _, s := range f.Statuses {
		v.Add("status", string(s))
	}
	for _, id := range f.CategoryIDs {
		v.Add("category_id", id)
	}
	if f.Applicant != "" {
		v.Set("applicant", f.Applicant)
	}
	if f.Overdue {
		v.Set("overdue", "true")
	}
	if f.OrderBy != "" {
		v.Set("order_by", f.OrderBy)
	}
	if f.Skip > 0 {
		v.Set("skip", strconv.Itoa(f.Skip))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}

// DevToken mints a token through the development endpoint.
func (c *Client) DevToken(ctx context.Context, username string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/dev/token", nil, map[string]string{"username": username}, &resp)
	return resp.Token, err
}

// CreateCase registers a case.
func (c *Client) CreateCase(ctx context.Context, in map[string]any) (domain.Case, error) {
	var resp domain.Case
	err := c.do(ctx, http.MethodPost, "/cases", nil, in, &resp)
	return resp, err
}

// ListCases returns one page of visible cases.
func (c *Client) ListCases(ctx context.Context, f CaseFilter) (engine.CasePage, error) {
	var resp engine.CasePage
	err := c.do(ctx, http.MethodGet, "/cases", f.values(), nil, &resp)
	return resp, err
}

// Case fetches a case with its history and visible comments.
func (c *Client) Case(ctx context.Context, id string) (engine.CaseDetail, error) {
	var resp engine.CaseDetail
	err := c.do(ctx, http.MethodGet, "/cases/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// Take claims a NEW case for the caller.
func (c *Client) Take(ctx context.Context, id string) (domain.Case, error) {
	var resp domain.Case
	err := c.do(ctx, http.MethodPost, "/cases/"+url.PathEscape(id)+"/take", nil, nil, &resp)
	return resp, err
}

// ChangeStatus moves a case; comment is required for non-admins.
func (c *Client) ChangeStatus(ctx context.Context, id string, to domain.Status, comment string) (domain.Case, error) {
	var resp domain.Case
	body := map[string]any{"to_status": to, "comment": comment}
	err := c.do(ctx, http.MethodPost, "/cases/"+url.PathEscape(id)+"/status", nil, body, &resp)
	return resp, err
}

// Assign sets the responsible executor; nil unassigns.
func (c *Client) Assign(ctx context.Context, id string, responsibleID *string) (domain.Case, error) {
	var resp domain.Case
	body := map[string]any{"responsible_id": responsibleID}
	err := c.do(ctx, http.MethodPatch, "/cases/"+url.PathEscape(id)+"/assign", nil, body, &resp)
	return resp, err
}

// AddComment posts a comment.
func (c *Client) AddComment(ctx context.Context, id, text string, internal bool) (domain.Comment, error) {
	var resp domain.Comment
	body := map[string]any{"text": text, "is_internal": internal}
	err := c.do(ctx, http.MethodPost, "/cases/"+url.PathEscape(id)+"/comments", nil, body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	var apiErr errorEnvelope
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		e := apiErr.Error
		e.StatusCode = resp.StatusCode()
		if e.Message == "" {
			e.Message = resp.String()
		}
		return &e
	}
	return nil
}
