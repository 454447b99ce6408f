package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/domain"
	"github.com/consultahub/consulta-server/internal/gate"
	"github.com/consultahub/consulta-server/internal/idempotency"
	"github.com/consultahub/consulta-server/internal/quota"
	"github.com/consultahub/consulta-server/internal/ratelimit"
	"github.com/consultahub/consulta-server/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubGate struct {
	calls    atomic.Int64
	decision gate.Decision
}

func (s *stubGate) Authorize(ctx context.Context, userID, lookupKind string) gate.Decision {
	s.calls.Add(1)
	return s.decision
}

type stubQuotas struct {
	status *quota.Status
	err    error
}

func (s *stubQuotas) Status(ctx context.Context, userID string) (*quota.Status, error) {
	return s.status, s.err
}

type stubRoles struct {
	err     error
	actorID string
	target  string
	role    domain.Role
}

func (s *stubRoles) Set(ctx context.Context, actorID, targetID string, newRole domain.Role) error {
	s.actorID, s.target, s.role = actorID, targetID, newRole
	return s.err
}

type stubModerator struct {
	applyErr  error
	actionID  string
	deactErrs error
}

func (s *stubModerator) Apply(ctx context.Context, moderatorID, userID string, actionType domain.ModerationType, reason string) (string, error) {
	if s.applyErr != nil {
		return "", s.applyErr
	}
	return s.actionID, nil
}

func (s *stubModerator) Deactivate(ctx context.Context, actionID string) error {
	return s.deactErrs
}

func (s *stubModerator) ActiveActions(ctx context.Context, userID string) ([]domain.ModerationAction, error) {
	return []domain.ModerationAction{}, nil
}

func (s *stubModerator) Log(ctx context.Context, limit int) ([]domain.ModerationAction, error) {
	return []domain.ModerationAction{}, nil
}

func allowedDecision(remaining int) gate.Decision {
	return gate.Decision{
		Allowed: true,
		Status: &quota.Status{
			Remaining:  remaining,
			DailyLimit: 7,
			ResetAt:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			Role:       domain.RoleUser,
		},
	}
}

func newTestServer(t *testing.T, g *stubGate, opts Options) *Server {
	t.Helper()

	return NewServer(
		g,
		&stubQuotas{status: &quota.Status{Remaining: 5, DailyLimit: 7, Role: domain.RoleUser}},
		&stubRoles{},
		&stubModerator{actionID: "a1"},
		apperr.NewHandler(testLogger(), false),
		opts,
		testLogger(),
	)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestHandleAuthorize_Allowed(t *testing.T) {
	g := &stubGate{decision: allowedDecision(6)}
	srv := newTestServer(t, g, Options{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/authorize",
		`{"user_id":"u1","lookup_kind":"cpf"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp decisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, 6, *resp.Remaining)
}

func TestHandleAuthorize_StatusPerReason(t *testing.T) {
	cases := []struct {
		reason gate.Reason
		status int
	}{
		{gate.ReasonUnauthenticated, http.StatusUnauthorized},
		{gate.ReasonBanned, http.StatusForbidden},
		{gate.ReasonQuotaExhausted, http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			g := &stubGate{decision: gate.Decision{Reason: tc.reason}}
			srv := newTestServer(t, g, Options{})

			rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/authorize",
				`{"user_id":"u1","lookup_kind":"cpf"}`, nil)

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandleAuthorize_UnavailableIs503(t *testing.T) {
	g := &stubGate{decision: gate.Decision{
		Reason: gate.ReasonUnavailable,
		Err:    errors.New("store down"),
	}}
	srv := newTestServer(t, g, Options{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/authorize",
		`{"user_id":"u1","lookup_kind":"cpf"}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["retryable"])
}

func TestHandleAuthorize_RejectsMissingLookupKind(t *testing.T) {
	g := &stubGate{}
	srv := newTestServer(t, g, Options{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/authorize",
		`{"user_id":"u1"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(0), g.calls.Load())
}

func TestHandleAuthorize_UserBurstLimitFromBodyIdentity(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		PerUser: config.RateLimitRule{Limit: 2, Window: "1m"},
	})
	limiter := ratelimit.NewMemoryLimiter(testLogger())

	g := &stubGate{decision: allowedDecision(6)}
	srv := newTestServer(t, g, Options{Limiter: limiter, Rules: rules})
	router := srv.Router()

	// no X-User-ID header anywhere; identity is the body's user_id
	body := `{"user_id":"u1","lookup_kind":"cpf"}`
	for i := 0; i < 2; i++ {
		rec := doJSON(t, router, http.MethodPost, "/v1/authorize", body, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/v1/authorize", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, int64(2), g.calls.Load(), "blocked bursts must not reach the gate")

	// other users are unaffected
	other := doJSON(t, router, http.MethodPost, "/v1/authorize",
		`{"user_id":"u2","lookup_kind":"cpf"}`, nil)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestHandleAuthorize_IdempotentRetryDoesNotSpendTwice(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	idem := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger())

	g := &stubGate{decision: allowedDecision(6)}
	srv := newTestServer(t, g, Options{Idem: idem})
	router := srv.Router()

	headers := map[string]string{"Idempotency-Key": "retry-1"}
	body := `{"user_id":"u1","lookup_kind":"cpf"}`

	first := doJSON(t, router, http.MethodPost, "/v1/authorize", body, headers)
	second := doJSON(t, router, http.MethodPost, "/v1/authorize", body, headers)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int64(1), g.calls.Load(), "gate must run once for a retried key")
}

func TestHandleAuthorize_UnavailableNotCachedForRetry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	idem := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger())

	g := &stubGate{decision: gate.Decision{Reason: gate.ReasonUnavailable, Err: errors.New("store down")}}
	srv := newTestServer(t, g, Options{Idem: idem})
	router := srv.Router()

	headers := map[string]string{"Idempotency-Key": "retry-2"}
	body := `{"user_id":"u1","lookup_kind":"cpf"}`

	first := doJSON(t, router, http.MethodPost, "/v1/authorize", body, headers)
	require.Equal(t, http.StatusServiceUnavailable, first.Code)

	// the store recovers; the retry reaches the gate again
	g.decision = allowedDecision(6)
	second := doJSON(t, router, http.MethodPost, "/v1/authorize", body, headers)

	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, int64(2), g.calls.Load())
}

func TestHandleQuotaStatus(t *testing.T) {
	srv := newTestServer(t, &stubGate{}, Options{})

	rec := doJSON(t, srv.Router(), http.MethodGet, "/v1/quota/u1", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var status quota.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 5, status.Remaining)
	assert.Equal(t, domain.RoleUser, status.Role)
}

func TestHandleSetRole_RequiresActor(t *testing.T) {
	srv := newTestServer(t, &stubGate{}, Options{})

	rec := doJSON(t, srv.Router(), http.MethodPut, "/v1/admin/roles",
		`{"target_id":"u1","role":"premium"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleSetRole_ForbiddenIs403(t *testing.T) {
	roles := &stubRoles{err: apperr.NewForbidden("only an owner may change the role of an admin")}
	srv := NewServer(&stubGate{}, &stubQuotas{}, roles, &stubModerator{},
		apperr.NewHandler(testLogger(), false), Options{}, testLogger())

	rec := doJSON(t, srv.Router(), http.MethodPut, "/v1/admin/roles",
		`{"target_id":"u1","role":"premium"}`,
		map[string]string{"X-Actor-ID": "admin1"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleSetRole_PassesActorThrough(t *testing.T) {
	roles := &stubRoles{}
	srv := NewServer(&stubGate{}, &stubQuotas{}, roles, &stubModerator{},
		apperr.NewHandler(testLogger(), false), Options{}, testLogger())

	rec := doJSON(t, srv.Router(), http.MethodPut, "/v1/admin/roles",
		`{"target_id":"u1","role":"premium"}`,
		map[string]string{"X-Actor-ID": "owner1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner1", roles.actorID)
	assert.Equal(t, "u1", roles.target)
	assert.Equal(t, domain.RolePremium, roles.role)
}

func TestHandleApplyModeration(t *testing.T) {
	srv := newTestServer(t, &stubGate{}, Options{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/admin/moderation",
		`{"user_id":"u1","action_type":"ban","reason":"abuse"}`,
		map[string]string{"X-Actor-ID": "mod1"})

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a1", resp["action_id"])
}

func TestHandleDeactivateModeration(t *testing.T) {
	srv := newTestServer(t, &stubGate{}, Options{})

	rec := doJSON(t, srv.Router(), http.MethodDelete, "/v1/admin/moderation/a1", "", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleSweep_WithoutJobsConfigured(t *testing.T) {
	srv := newTestServer(t, &stubGate{}, Options{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/admin/quota/sweep", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth_NoChecker(t *testing.T) {
	srv := newTestServer(t, &stubGate{}, Options{})

	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
