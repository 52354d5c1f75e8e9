package model

import "time"

// SchedulingRequest is a pending request to place one task.
type SchedulingRequest struct {
	Task       *ServiceTask
	SubmitTime time.Time
	// Number of scheduling passes in which the request could not be placed.
	TimesSkipped int

	cancelled bool
}

func NewSchedulingRequest(task *ServiceTask, submitTime time.Time) *SchedulingRequest {
	return &SchedulingRequest{
		Task:       task,
		SubmitTime: submitTime,
	}
}

// Cancel marks the request as cancelled. The next scan that observes the request removes it from the queue.
func (r *SchedulingRequest) Cancel() {
	r.cancelled = true
}

func (r *SchedulingRequest) IsCancelled() bool {
	return r.cancelled
}
