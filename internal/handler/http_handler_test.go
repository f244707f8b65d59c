package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-timesheets/internal/handler"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/auth"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/middleware"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository/memory"
	"github.com/pesio-ai/be-hr-timesheets/internal/service"
)

type testServer struct {
	t        *testing.T
	store    *memory.Store
	verifier *auth.Verifier
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	stores := service.Stores{
		Profiles:   store.Profiles(),
		Timesheets: store.Timesheets(),
		Signatures: store.Signatures(),
		Sites:      store.Sites(),
		Audit:      store.Audit(),
	}
	cfg := service.Config{StoreTimeout: time.Second, WeekEndingDay: time.Sunday}
	sites := service.NewSiteService(stores, cfg, nil)
	h := handler.NewHTTPHandler(
		service.NewTimesheetService(stores, nil, cfg, nil),
		service.NewUserService(stores, sites, cfg, nil),
		sites,
		logger.Nop(),
	)

	mux := http.NewServeMux()
	h.Register(mux)
	verifier := auth.NewVerifier("test-secret", "")
	return &testServer{
		t:        t,
		store:    store,
		verifier: verifier,
		handler:  middleware.Authenticate(verifier, "/health")(mux),
	}
}

func (s *testServer) profile(name string, role repository.Role, supervisorID *string) *repository.Profile {
	s.t.Helper()
	p := &repository.Profile{Email: name + "@example.com", FullName: name, Role: role, SupervisorID: supervisorID}
	require.NoError(s.t, s.store.Profiles().Create(context.Background(), p))
	return p
}

func (s *testServer) do(actor *repository.Profile, method, target string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if actor != nil {
		token, err := s.verifier.Sign(actor.ID, actor.Email, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func strp(s string) *string { return &s }

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeTimesheet(t *testing.T, rec *httptest.ResponseRecorder) repository.Timesheet {
	t.Helper()
	var ts repository.Timesheet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ts))
	return ts
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiresBearerToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(nil, http.MethodGet, "/api/v1/timesheets", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTimesheetLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	sup := s.profile("sup", repository.RoleSupervisor, nil)
	emp := s.profile("emp", repository.RoleEmployee, &sup.ID)

	rec := s.do(emp, http.MethodPost, "/api/v1/timesheets", map[string]string{"week_ending": "2026-10-11"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ts := decodeTimesheet(t, rec)
	assert.Equal(t, repository.StatusDraft, ts.Status)

	rec = s.do(emp, http.MethodPut, "/api/v1/timesheets/entries", map[string]interface{}{
		"id":      ts.ID,
		"entries": []map[string]interface{}{{"work_date": "2026-10-07", "hours": 7.5}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(emp, http.MethodPost, "/api/v1/timesheets/submit", map[string]string{"id": ts.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, repository.StatusSubmitted, decodeTimesheet(t, rec).Status)

	rec = s.do(sup, http.MethodGet, "/api/v1/approvals/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, 1, pending.Total)

	rec = s.do(sup, http.MethodPost, "/api/v1/timesheets/approve", map[string]string{"id": ts.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, repository.StatusApproved, decodeTimesheet(t, rec).Status)

	rec = s.do(sup, http.MethodPost, "/api/v1/timesheets/approve", map[string]string{"id": ts.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, rec).Error.Code)

	rec = s.do(emp, http.MethodGet, "/api/v1/timesheets/history?id="+ts.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorShape(t *testing.T) {
	s := newTestServer(t)
	emp := s.profile("emp", repository.RoleEmployee, nil)

	rec := s.do(emp, http.MethodPost, "/api/v1/timesheets", map[string]string{"week_ending": "2026-10-10"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", body.Error.Code)
	assert.Equal(t, "week_ending", body.Error.Field)
	assert.NotEmpty(t, body.Error.Message)

	rec = s.do(emp, http.MethodDelete, "/api/v1/users/delete?id="+emp.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You cannot delete your own account", decodeError(t, rec).Error.Message)

	rec = s.do(emp, http.MethodGet, "/api/v1/timesheets/submit", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/timesheets/submit", bytes.NewBufferString("{"))
	token, err := s.verifier.Sign(emp.ID, emp.Email, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	out := httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	s := newTestServer(t)
	emp := s.profile("emp", repository.RoleEmployee, nil)

	rec := s.do(emp, http.MethodPost, "/api/v1/timesheets", map[string]string{
		"week_ending": "2026-10-11",
		"padding":     strings.Repeat("x", 2<<20),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Code)
}

func TestUnknownAccountIsForbidden(t *testing.T) {
	s := newTestServer(t)
	ghost := &repository.Profile{ID: "7b0a8c51-8d54-4a2c-9b53-0f3e1c2d4e5f", Email: "ghost@example.com"}

	rec := s.do(ghost, http.MethodGet, "/api/v1/sites", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUsersAndSitesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.profile("admin", repository.RoleAdmin, nil)
	site := s.store.AddSite(&repository.Site{Name: "Depot", Code: strp("DP")})

	rec := s.do(admin, http.MethodPost, "/api/v1/users", map[string]interface{}{
		"email":     "new@example.com",
		"full_name": "New Person",
		"site_ids":  []string{site.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created repository.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, repository.RoleEmployee, created.Role)

	rec = s.do(admin, http.MethodPut, "/api/v1/users/update", map[string]interface{}{
		"id":   created.ID,
		"role": "supervisor",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(admin, http.MethodGet, "/api/v1/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Equal(t, 2, users.Total)

	rec = s.do(admin, http.MethodGet, "/api/v1/sites", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(admin, http.MethodDelete, "/api/v1/users/delete?id="+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
