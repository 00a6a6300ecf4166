package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/config"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/db"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	Engine engine.Engine
	Admin  domain.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, db.SQLite, config.Default())
	admin, err := e.Bootstrap(context.Background(), engine.CreateUserInput{
		Username: "admin", Email: "admin@example.org", FullName: "Admin", Role: domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour, DevTokens: true},
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{Server: srv, Engine: e, Admin: admin}
}

func (s *testServer) token(t *testing.T, u domain.User) string {
	t.Helper()
	tok, _, err := SignToken(testSecret, u, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (s *testServer) user(t *testing.T, name string, role domain.Role) domain.User {
	t.Helper()
	u, err := s.Engine.CreateUser(context.Background(), s.Admin.Actor(), engine.CreateUserInput{
		Username: name, Email: name + "@example.org", FullName: name, Role: role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %T: %v: %s", v, err, string(data))
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	decode(t, data, &env)
	return env.Error.Code
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/health", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/cases", "", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("error code %q", code)
	}

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/cases", "not-a-jwt", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", res.StatusCode)
	}
}

func TestDevTokenAndMe(t *testing.T) {
	srv := newTestServer(t)
	ex := srv.user(t, "ex1", domain.RoleExecutor)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/auth/dev/token", "", map[string]string{"username": "ex1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev token status %d: %s", res.StatusCode, string(data))
	}
	var tok TokenResponse
	decode(t, data, &tok)
	if tok.User.ID != ex.ID {
		t.Fatalf("token issued for %s, want %s", tok.User.ID, ex.ID)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/me", tok.Token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	decode(t, data, &me)
	if me.User.Role != domain.RoleExecutor {
		t.Fatalf("role %s", me.User.Role)
	}
	if me.CategoryIDs == nil {
		t.Fatalf("executor category ids should be an empty list, got null")
	}

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/auth/dev/token", "", map[string]string{"username": "nobody"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("unknown user should get 403, got %d", res.StatusCode)
	}
}

func TestCaseLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	adminTok := srv.token(t, srv.Admin)
	op := srv.user(t, "op1", domain.RoleOperator)
	ex1 := srv.user(t, "ex1", domain.RoleExecutor)
	ex2 := srv.user(t, "ex2", domain.RoleExecutor)
	opTok, ex1Tok, ex2Tok := srv.token(t, op), srv.token(t, ex1), srv.token(t, ex2)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/categories", adminTok, map[string]string{"name": "Cardiology"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create category status %d: %s", res.StatusCode, string(data))
	}
	var cat domain.Category
	decode(t, data, &cat)
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/channels", adminTok, map[string]string{"name": "Phone"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create channel status %d: %s", res.StatusCode, string(data))
	}
	var ch domain.Channel
	decode(t, data, &ch)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/cases", opTok, map[string]any{
		"category_id":    cat.ID,
		"channel_id":     ch.ID,
		"applicant_name": "Test",
		"summary":        "Needs a callback about results",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create case status %d: %s", res.StatusCode, string(data))
	}
	var c domain.Case
	decode(t, data, &c)
	if c.Status != domain.StatusNew {
		t.Fatalf("expected NEW, got %s", c.Status)
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/cases/"+c.ID+"/take", ex1Tok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("take status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/cases/"+c.ID+"/take", ex2Tok, nil)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_state" {
		t.Fatalf("second take: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/cases/"+c.ID+"/status", ex1Tok, map[string]any{"to_status": "DONE", "comment": "short"})
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "invalid_input" {
		t.Fatalf("short resolution comment: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/cases/"+c.ID+"/status", ex1Tok, map[string]any{"to_status": "DONE", "comment": "Resolved fully"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("done status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/cases/"+c.ID, opTok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get case status %d: %s", res.StatusCode, string(data))
	}
	var detail engine.CaseDetail
	decode(t, data, &detail)
	if detail.Case.Status != domain.StatusDone {
		t.Fatalf("expected DONE, got %s", detail.Case.Status)
	}
	if len(detail.History) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(detail.History))
	}
	if len(detail.Comments) != 0 {
		t.Fatalf("operator must not see the internal status comment: %+v", detail.Comments)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/cases?status=DONE", adminTok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page engine.CasePage
	decode(t, data, &page)
	if page.Total != 1 {
		t.Fatalf("expected 1 DONE case, got %d", page.Total)
	}

	res, data = doJSON(t, http.MethodPatch, srv.URL+"/v1/cases/"+c.ID+"/assign", adminTok, map[string]any{"responsible_id": nil})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("unassigning a DONE case: %d %s", res.StatusCode, string(data))
	}
}

func TestOperatorCannotSeeOthersCases(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	op1 := srv.user(t, "op1", domain.RoleOperator)
	op2 := srv.user(t, "op2", domain.RoleOperator)
	cat, err := srv.Engine.CreateCategory(ctx, srv.Admin.Actor(), "General")
	if err != nil {
		t.Fatal(err)
	}
	ch, err := srv.Engine.CreateChannel(ctx, srv.Admin.Actor(), "Email")
	if err != nil {
		t.Fatal(err)
	}
	c, err := srv.Engine.CreateCase(ctx, op2.Actor(), engine.CreateCaseInput{
		CategoryID: cat.ID, ChannelID: ch.ID, ApplicantName: "X", Summary: "Y",
	})
	if err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/cases/"+c.ID, srv.token(t, op1), nil)
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("foreign case: %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/cases/missing", srv.token(t, op1), nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing case: %d", res.StatusCode)
	}
}

func TestDeactivatedTokenIsRejected(t *testing.T) {
	srv := newTestServer(t)
	ex := srv.user(t, "ex1", domain.RoleExecutor)
	tok := srv.token(t, ex)
	if _, err := srv.Engine.SetUserActive(context.Background(), srv.Admin.Actor(), ex.ID, false, false); err != nil {
		t.Fatal(err)
	}

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/cases", tok, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("deactivated user should get 403, got %d", res.StatusCode)
	}
}

func TestDemotionWithOpenCasesNeedsForce(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	adminTok := srv.token(t, srv.Admin)
	op := srv.user(t, "op1", domain.RoleOperator)
	ex := srv.user(t, "ex1", domain.RoleExecutor)
	cat, err := srv.Engine.CreateCategory(ctx, srv.Admin.Actor(), "Neurology")
	if err != nil {
		t.Fatal(err)
	}
	ch, err := srv.Engine.CreateChannel(ctx, srv.Admin.Actor(), "Phone")
	if err != nil {
		t.Fatal(err)
	}
	c, err := srv.Engine.CreateCase(ctx, op.Actor(), engine.CreateCaseInput{
		CategoryID: cat.ID, ChannelID: ch.ID, ApplicantName: "X", Summary: "Y",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Engine.TakeCase(ctx, ex.Actor(), c.ID); err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/users/"+ex.ID+"/active-cases", adminTok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("active cases status %d: %s", res.StatusCode, string(data))
	}
	var open ActiveCasesResponse
	decode(t, data, &open)
	if open.ActiveCasesCount != 1 || len(open.Cases) != 1 || open.Cases[0].ID != c.ID {
		t.Fatalf("active cases: %+v", open)
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/users/"+ex.ID+"/active-cases", srv.token(t, ex), nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("executor reading active cases: %d", res.StatusCode)
	}

	demote := map[string]any{"role": "OPERATOR"}
	res, data = doJSON(t, http.MethodPatch, srv.URL+"/v1/users/"+ex.ID, adminTok, demote)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "has_active_cases" {
		t.Fatalf("demotion without force: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, http.MethodPatch, srv.URL+"/v1/users/"+ex.ID, adminTok, map[string]any{"is_active": false})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("deactivation without force: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, http.MethodPatch, srv.URL+"/v1/users/"+ex.ID+"?force=true", adminTok, demote)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forced demotion status %d: %s", res.StatusCode, string(data))
	}
	var u domain.User
	decode(t, data, &u)
	if u.Role != domain.RoleOperator {
		t.Fatalf("role %s", u.Role)
	}
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/users/"+ex.ID+"/active-cases", adminTok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("active cases status %d: %s", res.StatusCode, string(data))
	}
	var after ActiveCasesResponse
	decode(t, data, &after)
	if after.ActiveCasesCount != 0 || after.Cases == nil {
		t.Fatalf("expected an empty list after release: %s", string(data))
	}
	got, err := srv.Engine.GetCase(ctx, srv.Admin.Actor(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusNew || got.ResponsibleID != nil {
		t.Fatalf("case should be back in the pool: %+v", got)
	}
}

func TestExecutorCategoryEndpoints(t *testing.T) {
	srv := newTestServer(t)
	adminTok := srv.token(t, srv.Admin)
	ex := srv.user(t, "ex1", domain.RoleExecutor)
	op := srv.user(t, "op1", domain.RoleOperator)
	cat, err := srv.Engine.CreateCategory(context.Background(), srv.Admin.Actor(), "Surgery")
	if err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/executors/"+ex.ID+"/categories/"+cat.ID, adminTok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("grant status %d: %s", res.StatusCode, string(data))
	}
	var grant GrantResponse
	decode(t, data, &grant)
	if !grant.Created {
		t.Fatalf("first grant should report created")
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/executors/"+ex.ID+"/categories", srv.token(t, ex), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list grants status %d: %s", res.StatusCode, string(data))
	}
	var access AccessResponse
	decode(t, data, &access)
	if len(access.CategoryIDs) != 1 || access.CategoryIDs[0] != cat.ID {
		t.Fatalf("grants: %v", access.CategoryIDs)
	}

	res, data = doJSON(t, http.MethodPut, srv.URL+"/v1/executors/"+op.ID+"/categories", adminTok, map[string]any{"category_ids": []string{cat.ID}})
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "invalid_role" {
		t.Fatalf("grant to operator: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, http.MethodPut, srv.URL+"/v1/executors/"+ex.ID+"/categories", adminTok, map[string]any{"category_ids": []string{}})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear grants status %d: %s", res.StatusCode, string(data))
	}
	var cleared AccessResponse
	decode(t, data, &cleared)
	if cleared.CategoryIDs == nil || len(cleared.CategoryIDs) != 0 {
		t.Fatalf("expected an empty grant list: %s", string(data))
	}

	if _, err := srv.Engine.GrantAccess(context.Background(), srv.Admin.Actor(), ex.ID, cat.ID); err != nil {
		t.Fatal(err)
	}
	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/executors/"+ex.ID+"/categories/"+cat.ID, adminTok, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke: %d", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/executors/"+ex.ID+"/categories/"+cat.ID, adminTok, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second revoke: %d", res.StatusCode)
	}

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/categories", srv.token(t, ex), map[string]string{"name": "Nope"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("executor creating a category: %d", res.StatusCode)
	}
}

func TestOpenAPIServed(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/openapi.json", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc map[string]any
	decode(t, data, &doc)
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatalf("openapi document has no paths")
	}
	for _, p := range []string{"/v1/cases/{case_id}/take", "/v1/users/{user_id}/active-cases"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("missing path %s", p)
		}
	}
}
