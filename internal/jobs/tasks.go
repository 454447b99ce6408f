package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeQuotaSweep = "quota:reset_sweep"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// QuotaSweepPayload bounds how many due users one sweep run touches.
type QuotaSweepPayload struct {
	Batch int `json:"batch"`
}

// NewQuotaSweepTask builds the scheduled quota reset sweep task.
func NewQuotaSweepTask(batch int) (*asynq.Task, error) {
	payload, err := json.Marshal(QuotaSweepPayload{Batch: batch})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeQuotaSweep, payload, asynq.Queue(QueueLow)), nil
}
