package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/jobs"
	"github.com/consultahub/consulta-server/internal/quota"
)

// QuotaSweepHandler resets every user whose quota boundary has passed. It
// only accelerates what the lazy reset would do on the user's next call.
type QuotaSweepHandler struct {
	quotas *quota.Service
	log    *slog.Logger
}

func NewQuotaSweepHandler(quotas *quota.Service, log *slog.Logger) *QuotaSweepHandler {
	return &QuotaSweepHandler{quotas: quotas, log: log}
}

func (h *QuotaSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.QuotaSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "quota sweep: failed to decode payload", slog.Any("task_type", t.Type()), slog.String("error", err.Error()))
		}
		return err
	}

	var swept int
	err := apperr.WithRetry(ctx, func() error {
		var sweepErr error
		swept, sweepErr = h.quotas.SweepDue(ctx, time.Now().UTC(), payload.Batch)
		return sweepErr
	})
	if err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "quota sweep failed", slog.Any("error", err))
		}
		return err
	}

	if h.log != nil {
		h.log.InfoContext(ctx, "quota sweep finished", slog.Int("reset_count", swept))
	}

	return nil
}
