package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/consultahub/consulta-server/pkg/logger"
)

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		s.log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("correlation_id", logger.CorrelationIDFromContext(r.Context())),
		)
	})
}

// userBurstAllowed enforces the per-user burst rule. Identity comes from
// the request body, the same field the gate receives, so the check runs in
// the handler rather than as chi middleware. A limiter failure lets the
// request through: the quota ledger downstream still fails closed, and
// burst protection is best-effort.
func (s *Server) userBurstAllowed(r *http.Request, userID string) (bool, time.Duration) {
	if s.limiter == nil || s.rules == nil || userID == "" || s.rules.IsWhitelisted(userID) {
		return true, 0
	}

	limit, window, err := s.rules.GetPerUserLimit()
	if err != nil {
		s.log.Error("failed to load per-user rate limit", slog.Any("error", err))
		return true, 0
	}

	result, err := s.limiter.Check(r.Context(), "user:"+userID, limit, window)
	if err != nil && result == nil {
		return true, 0
	}

	if result != nil && !result.Allowed {
		retryAfter := time.Until(result.ResetAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	return true, 0
}

// lookupBurstAllowed enforces the per-kind burst rule. Like the per-user
// middleware it is best-effort: limiter failures let the request through.
func (s *Server) lookupBurstAllowed(r *http.Request, userID, kind string) bool {
	if s.limiter == nil || s.rules == nil || userID == "" || s.rules.IsWhitelisted(userID) {
		return true
	}

	limit, window, err := s.rules.GetLookupLimit(kind)
	if err != nil {
		s.log.Error("failed to load lookup rate limit", slog.String("kind", kind), slog.Any("error", err))
		return true
	}

	result, err := s.limiter.Check(r.Context(), "lookup:"+kind+":"+userID, limit, window)
	if err != nil && result == nil {
		return true
	}

	return result == nil || result.Allowed
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
