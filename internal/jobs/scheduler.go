package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	sweepCron      string
	sweepBatch     int
	log            *slog.Logger
}

// NewScheduler builds the cron scheduler that enqueues the periodic quota
// reset sweep. The sweep complements the lazy reset; both go through the
// same atomic ledger path, so overlap is harmless.
func NewScheduler(redisOpt asynq.RedisConnOpt, sweepCron string, sweepBatch int, log *slog.Logger) Scheduler {
	if sweepCron == "" {
		sweepCron = "*/10 * * * *"
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		sweepCron:      sweepCron,
		sweepBatch:     sweepBatch,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	task, err := NewQuotaSweepTask(s.sweepBatch)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.sweepCron, task); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered quota sweep task", "cron", s.sweepCron)
	}

	return nil
}

func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
