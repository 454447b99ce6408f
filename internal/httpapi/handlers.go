package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/domain"
	"github.com/consultahub/consulta-server/internal/gate"
	"github.com/consultahub/consulta-server/internal/idempotency"
	"github.com/consultahub/consulta-server/internal/jobs"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type authorizeRequest struct {
	UserID     string `json:"user_id"`
	LookupKind string `json:"lookup_kind" validate:"required"`
}

type decisionResponse struct {
	Allowed    bool       `json:"allowed"`
	Reason     string     `json:"reason,omitempty"`
	Remaining  *int       `json:"remaining,omitempty"`
	DailyLimit *int       `json:"daily_limit,omitempty"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

type authorizeOutcome struct {
	Status int              `json:"status"`
	Body   decisionResponse `json:"body"`
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.NewValidationError("invalid JSON body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, r, apperr.NewValidationError(err.Error()))
		return
	}

	if allowed, retryAfter := s.userBurstAllowed(r, req.UserID); !allowed {
		w.Header().Set("Retry-After", retryAfter.Truncate(time.Second).String())
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": "too many requests, slow down",
		})
		return
	}

	if !s.lookupBurstAllowed(r, req.UserID, req.LookupKind) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": "too many requests for this lookup kind, slow down",
		})
		return
	}

	run := func() (authorizeOutcome, error) {
		decision := s.gate.Authorize(r.Context(), req.UserID, req.LookupKind)
		if decision.Reason == gate.ReasonUnavailable {
			// Unavailable outcomes spend nothing and must not be replayed
			// from the idempotency cache.
			return authorizeOutcome{}, apperr.NewUnavailable("authorization", decision.Err)
		}
		return outcomeFrom(decision), nil
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if s.idem == nil || idemKey == "" {
		outcome, err := run()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, outcome.Status, outcome.Body)
		return
	}

	key := idempotency.GenerateKey("authorize", req.UserID, req.LookupKind, idemKey)
	res, err := s.idem.Execute(r.Context(), key, s.idemTTL, func(ctx context.Context) (interface{}, error) {
		return run()
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrRequestInProgress) {
			s.writeError(w, r, apperr.NewValidationError("request with this idempotency key is still in progress"))
			return
		}
		s.writeError(w, r, err)
		return
	}

	// Cached responses come back as decoded JSON; normalize through a
	// round trip either way.
	raw, err := json.Marshal(res.Response)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var outcome authorizeOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, outcome.Status, outcome.Body)
}

func outcomeFrom(decision gate.Decision) authorizeOutcome {
	body := decisionResponse{Allowed: decision.Allowed, Reason: string(decision.Reason)}
	if decision.Status != nil {
		body.Remaining = &decision.Status.Remaining
		body.DailyLimit = &decision.Status.DailyLimit
		resetAt := decision.Status.ResetAt
		body.ResetAt = &resetAt
	}

	status := http.StatusOK
	switch decision.Reason {
	case gate.ReasonUnauthenticated:
		status = http.StatusUnauthorized
	case gate.ReasonBanned:
		status = http.StatusForbidden
	case gate.ReasonQuotaExhausted:
		status = http.StatusTooManyRequests
	}

	return authorizeOutcome{Status: status, Body: body}
}

func (s *Server) handleQuotaStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		s.writeError(w, r, apperr.NewValidationError("user id is required"))
		return
	}

	status, err := s.quotas.Status(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

type setRoleRequest struct {
	TargetID string `json:"target_id" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get("X-Actor-ID")
	if actorID == "" {
		s.writeError(w, r, apperr.NewUnauthenticated())
		return
	}

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.NewValidationError("invalid JSON body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, r, apperr.NewValidationError(err.Error()))
		return
	}

	if err := s.roles.Set(r.Context(), actorID, req.TargetID, domain.Role(req.Role)); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type applyModerationRequest struct {
	UserID     string `json:"user_id" validate:"required"`
	ActionType string `json:"action_type" validate:"required"`
	Reason     string `json:"reason"`
}

func (s *Server) handleApplyModeration(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get("X-Actor-ID")
	if actorID == "" {
		s.writeError(w, r, apperr.NewUnauthenticated())
		return
	}

	var req applyModerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.NewValidationError("invalid JSON body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, r, apperr.NewValidationError(err.Error()))
		return
	}

	actionID, err := s.registry.Apply(r.Context(), actorID, req.UserID, domain.ModerationType(req.ActionType), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"action_id": actionID})
}

func (s *Server) handleDeactivateModeration(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "actionID")

	if err := s.registry.Deactivate(r.Context(), actionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModerationLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	actions, err := s.registry.Log(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleActiveModeration(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	actions, err := s.registry.ActiveActions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		s.writeError(w, r, apperr.NewValidationError("background jobs are not configured"))
		return
	}

	batch, _ := strconv.Atoi(r.URL.Query().Get("batch"))
	task, err := jobs.NewQuotaSweepTask(batch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.tasks.Enqueue(r.Context(), task); err != nil {
		s.writeError(w, r, apperr.NewUnavailable("job queue", err))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	results := s.checker.Check(r.Context())
	status := http.StatusOK
	for _, result := range results {
		if result != "OK" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, results)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	userMessage, retryable := s.errs.Handle(r.Context(), err)

	status := http.StatusInternalServerError
	var appErr *apperr.AppError
	if errors.As(err, &appErr) && appErr != nil {
		switch appErr.Code {
		case "E100":
			status = http.StatusBadRequest
		case "E101":
			status = http.StatusUnauthorized
		case "E102", "E104":
			status = http.StatusForbidden
		case "E103":
			status = http.StatusTooManyRequests
		case "E200":
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, map[string]any{
		"error":     userMessage,
		"retryable": retryable,
	})
}
