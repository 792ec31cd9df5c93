package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qms/turn-service/internal/auth"
	"qms/turn-service/internal/models"
	"qms/turn-service/internal/queue"
	"qms/turn-service/internal/registry"
	"qms/turn-service/internal/report"
	"qms/turn-service/internal/store/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type testServer struct {
	handler  http.Handler
	registry *registry.Service
	queue    *queue.Service
	tokens   *auth.Tokens
	staffSeq int
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	st := memory.New()
	q := queue.NewService(st, queue.Options{})
	reg := registry.NewService(st)
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	metrics := NewMetrics(prometheus.NewRegistry(), q)
	handler := NewHandler(st, q, reg, tokens, Options{Metrics: metrics})
	return &testServer{handler: handler.Stack(limiter), registry: reg, queue: q, tokens: tokens}
}

func (s *testServer) staff(t *testing.T, role string) (models.Staff, string) {
	t.Helper()
	s.staffSeq++
	member, err := s.registry.CreateStaff(context.Background(), registry.StaffInput{
		Name:     fmt.Sprintf("%s %d", role, s.staffSeq),
		Email:    fmt.Sprintf("%s%d@example.com", role, s.staffSeq),
		Password: "password123",
		Role:     role,
	})
	require.NoError(t, err)
	token, _, err := s.tokens.Issue(member)
	require.NoError(t, err)
	return member, token
}

func (s *testServer) module(t *testing.T, name string) models.Module {
	t.Helper()
	module, err := s.registry.CreateModule(context.Background(), registry.ModuleInput{Name: name})
	require.NoError(t, err)
	return module
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = strings.NewReader(raw)
		} else {
			payload, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorResponse](t, rec).Error.Code
}

func TestPublicEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	for _, path := range []string{"/api/queue/stats", "/api/queue/waiting", "/api/queue/served", "/api/queue/board"} {
		rec := srv.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = srv.do(t, http.MethodPost, "/api/turns", "", map[string]string{"national_id": "1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	rec = srv.do(t, http.MethodGet, "/api/modules", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginCookieAndMe(t *testing.T) {
	srv := newTestServer(t, nil)
	agent, _ := srv.staff(t, models.RoleAgent)
	desk := srv.module(t, "Desk 1")
	_, err := srv.queue.TakeModule(context.Background(), desk.ModuleID, agent.StaffID)
	require.NoError(t, err)

	rec := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": agent.Email, "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": agent.Email, "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeBody[loginResponse](t, rec)
	assert.Equal(t, agent.StaffID, login.Staff.StaffID)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, login.Token, cookie.Value)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	meRec := httptest.NewRecorder()
	srv.handler.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusOK, meRec.Code)
	me := decodeBody[meResponse](t, meRec)
	assert.Equal(t, agent.Email, me.Staff.Email)
	require.NotNil(t, me.Module)
	assert.Equal(t, desk.ModuleID, me.Module.ModuleID)

	rec = srv.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeletedStaffTokenIsRejected(t *testing.T) {
	srv := newTestServer(t, nil)
	member, token := srv.staff(t, models.RoleReceptionist)
	require.NoError(t, srv.registry.DeleteStaff(context.Background(), member.StaffID))

	rec := srv.do(t, http.MethodGet, "/api/customers", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTurnFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	_, reception := srv.staff(t, models.RoleReceptionist)
	agent, agentToken := srv.staff(t, models.RoleAgent)
	desk := srv.module(t, "Desk 1")

	rec := srv.do(t, http.MethodPost, "/api/customers", reception, map[string]string{"name": "Ana", "national_id": "111"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/turns", reception, map[string]string{"national_id": "111"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := *decodeBody[turnResponse](t, rec).Turn
	assert.Equal(t, "A001", created.TicketCode)
	assert.Equal(t, models.StatusWaiting, created.Status)

	rec = srv.do(t, http.MethodPost, "/api/turns", reception, map[string]string{"national_id": "111"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "active_turn_exists", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/turns", reception, map[string]string{"national_id": "999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "customer_not_found", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/modules/"+desk.ModuleID+"/take", agentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/queue/call-next", agentToken, map[string]string{"module_id": desk.ModuleID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	called := decodeBody[turnResponse](t, rec)
	require.NotNil(t, called.Turn)
	assert.Equal(t, created.TurnID, called.Turn.TurnID)
	assert.Equal(t, models.StatusBeingServed, called.Turn.Status)

	rec = srv.do(t, http.MethodPost, "/api/queue/call-next", agentToken, map[string]string{"module_id": desk.ModuleID})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[turnResponse](t, rec).Turn)

	rec = srv.do(t, http.MethodGet, "/api/queue/served", "", nil)
	served := decodeBody[turnsResponse](t, rec).Turns
	require.Len(t, served, 1)
	require.NotNil(t, served[0].Module)
	assert.Equal(t, "Desk 1", served[0].Module.Name)

	rec = srv.do(t, http.MethodPost, "/api/turns/"+created.TurnID+"/complete", agentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	completed := decodeBody[turnResponse](t, rec).Turn
	require.NotNil(t, completed)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedBy)
	assert.Equal(t, agent.StaffID, *completed.CompletedBy)

	rec = srv.do(t, http.MethodPost, "/api/turns/"+created.TurnID+"/cancel", reception, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "turn_completed", errorCode(t, rec))

	rec = srv.do(t, http.MethodGet, "/api/queue/stats", "", nil)
	stats := decodeBody[models.QueueStats](t, rec)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.TotalToday)
	assert.Nil(t, stats.NextTicket)
}

func TestCallNextBusyModule(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()
	_, reception := srv.staff(t, models.RoleReceptionist)
	agent, agentToken := srv.staff(t, models.RoleAgent)
	desk := srv.module(t, "Desk 1")
	_, err := srv.queue.TakeModule(ctx, desk.ModuleID, agent.StaffID)
	require.NoError(t, err)

	for i, id := range []string{"111", "222"} {
		_, err := srv.registry.RegisterCustomer(ctx, registry.CustomerInput{Name: fmt.Sprintf("c%d", i), NationalID: id})
		require.NoError(t, err)
		rec := srv.do(t, http.MethodPost, "/api/turns", reception, map[string]string{"national_id": id})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := srv.do(t, http.MethodPost, "/api/queue/call-next", agentToken, map[string]string{"module_id": desk.ModuleID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/queue/call-next", agentToken, map[string]string{"module_id": desk.ModuleID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "module_busy", errorCode(t, rec))
}

func TestCallNextChecksHolderInsideAssignment(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()
	_, reception := srv.staff(t, models.RoleReceptionist)
	holder, holderToken := srv.staff(t, models.RoleAgent)
	other, otherToken := srv.staff(t, models.RoleAgent)
	desk1 := srv.module(t, "Desk 1")
	desk2 := srv.module(t, "Desk 2")
	_, err := srv.queue.TakeModule(ctx, desk1.ModuleID, holder.StaffID)
	require.NoError(t, err)
	_, err = srv.queue.TakeModule(ctx, desk2.ModuleID, other.StaffID)
	require.NoError(t, err)
	_, err = srv.registry.RegisterCustomer(ctx, registry.CustomerInput{Name: "Ana", NationalID: "111"})
	require.NoError(t, err)
	rec := srv.do(t, http.MethodPost, "/api/turns", reception, map[string]string{"national_id": "111"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/queue/call-next", otherToken, map[string]string{"module_id": desk1.ModuleID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "access_denied", errorCode(t, rec))

	rec = srv.do(t, http.MethodGet, "/api/queue/waiting", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[turnsResponse](t, rec).Turns, 1)

	rec = srv.do(t, http.MethodPost, "/api/queue/call-next", holderToken, map[string]string{"module_id": desk1.ModuleID})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, decodeBody[turnResponse](t, rec).Turn)
}

func TestTurnListsAreWrapped(t *testing.T) {
	srv := newTestServer(t, nil)
	_, reception := srv.staff(t, models.RoleReceptionist)

	for _, path := range []string{"/api/queue/waiting", "/api/queue/served"} {
		rec := srv.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"turns":[]}`, rec.Body.String(), path)
	}
	rec := srv.do(t, http.MethodGet, "/api/turns?date=2026-03-02", reception, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"turns":[]}`, rec.Body.String())
}

func TestRoleGates(t *testing.T) {
	srv := newTestServer(t, nil)
	_, reception := srv.staff(t, models.RoleReceptionist)
	_, agentToken := srv.staff(t, models.RoleAgent)
	_, admin := srv.staff(t, models.RoleAdmin)
	desk := srv.module(t, "Desk 1")

	rec := srv.do(t, http.MethodPost, "/api/customers", agentToken, map[string]string{"name": "Ana", "national_id": "111"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/queue/call-next", reception, map[string]string{"module_id": desk.ModuleID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/queue/call-next", agentToken, map[string]string{"module_id": desk.ModuleID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/staff", reception, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = srv.do(t, http.MethodGet, "/api/staff", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Staff](t, rec), 3)

	rec = srv.do(t, http.MethodPost, "/api/modules", agentToken, map[string]string{"name": "Desk 2"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = srv.do(t, http.MethodPost, "/api/modules", admin, map[string]string{"name": "Desk 2"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = srv.do(t, http.MethodPost, "/api/modules", admin, map[string]string{"name": "desk 2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_module_name", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/queue/call-next", admin, map[string]string{"module_id": desk.ModuleID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "module_unattended", errorCode(t, rec))
}

func TestModuleOccupancyEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	first, firstToken := srv.staff(t, models.RoleAgent)
	_, secondToken := srv.staff(t, models.RoleAgent)
	_, admin := srv.staff(t, models.RoleAdmin)
	desk := srv.module(t, "Desk 1")

	rec := srv.do(t, http.MethodPost, "/api/modules/"+desk.ModuleID+"/take", firstToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[models.ModuleStatus](t, rec)
	require.NotNil(t, status.AgentID)
	assert.Equal(t, first.StaffID, *status.AgentID)
	assert.False(t, status.Busy)

	rec = srv.do(t, http.MethodPost, "/api/modules/"+desk.ModuleID+"/take", secondToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "module_taken", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/modules/"+desk.ModuleID+"/leave", secondToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "module_not_held", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/modules/"+desk.ModuleID+"/leave", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[models.ModuleStatus](t, rec).AgentID)

	rec = srv.do(t, http.MethodGet, "/api/modules", secondToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.ModuleStatus](t, rec), 1)

	rec = srv.do(t, http.MethodPost, "/api/modules/not-a-module/take", firstToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	_, reception := srv.staff(t, models.RoleReceptionist)
	_, admin := srv.staff(t, models.RoleAdmin)

	rec := srv.do(t, http.MethodPost, "/api/turns", reception, "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), "national_id is required")

	rec = srv.do(t, http.MethodPost, "/api/turns", reception, `{"national_id":"1","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/staff", admin, map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": "password123", "role": "janitor",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "role must be one of")

	rec = srv.do(t, http.MethodGet, "/api/queue/stats?date=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDailyReport(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()
	_, admin := srv.staff(t, models.RoleAdmin)
	_, reception := srv.staff(t, models.RoleReceptionist)
	_, err := srv.registry.RegisterCustomer(ctx, registry.CustomerInput{Name: "Ana", NationalID: "111"})
	require.NoError(t, err)
	_, err = srv.queue.CreateTurn(ctx, "111")
	require.NoError(t, err)

	rec := srv.do(t, http.MethodGet, "/api/reports/daily", reception, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/reports/daily", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), report.Filename(srv.queue.Today()))

	xl, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = xl.Close() }()
	rows, err := xl.GetRows(report.TurnsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A001", rows[1][0])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()
	_, reception := srv.staff(t, models.RoleReceptionist)
	_, err := srv.registry.RegisterCustomer(ctx, registry.CustomerInput{Name: "Ana", NationalID: "111"})
	require.NoError(t, err)

	rec := srv.do(t, http.MethodPost, "/api/turns", reception, map[string]string{"national_id": "111"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `turn_transitions_total{action="create"} 1`)
	assert.Contains(t, body, `turns_today{status="waiting"} 1`)
	assert.Contains(t, body, `http_requests_total{method="POST",route="/api/turns",status="201"} 1`)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1, StaffPerMinute: 1, StaffBurst: 2})
	srv := newTestServer(t, limiter)

	rec := srv.do(t, http.MethodGet, "/api/queue/stats", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(t, http.MethodGet, "/api/queue/stats", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	_, token := srv.staff(t, models.RoleAgent)
	for i := 0; i < 2; i++ {
		rec = srv.do(t, http.MethodGet, "/api/modules", token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec = srv.do(t, http.MethodGet, "/api/modules", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestTokenLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 5)
	limiter.now = func() time.Time { return now }
	require.Equal(t, 5*time.Second, limiter.idle)

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.allow(fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Len(t, limiter.bucket, 100)

	now = now.Add(3 * time.Second)
	assert.True(t, limiter.allow("10.0.0.0"))
	assert.Len(t, limiter.bucket, 100)

	now = now.Add(3 * time.Second)
	assert.True(t, limiter.allow("10.0.1.1"))
	assert.Len(t, limiter.bucket, 2)
	assert.Contains(t, limiter.bucket, "10.0.0.0")
	assert.Contains(t, limiter.bucket, "10.0.1.1")
}

func TestTokenLimiterEvictionKeepsLimit(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 2)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("staff"))
	assert.True(t, limiter.allow("staff"))
	assert.False(t, limiter.allow("staff"))

	now = now.Add(limiter.idle)
	assert.True(t, limiter.allow("staff"))
	assert.True(t, limiter.allow("staff"))
	assert.False(t, limiter.allow("staff"))
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/healthz":              "/healthz",
		"/api/turns":            "/api/turns",
		"/api/turns/abc/cancel": "/api/turns/:id/cancel",
		"/api/modules/xyz":      "/api/modules/:id",
		"/api/queue/call-next":  "/api/queue/call-next",
		"/favicon.ico":          "other",
		"/api/customers/123":    "/api/customers/:id",
		"/api/reports/daily":    "/api/reports/daily",
		"/api/staff/42/":        "/api/staff/:id",
	}
	for path, want := range cases {
		assert.Equal(t, want, routeLabel(path), path)
	}
}
