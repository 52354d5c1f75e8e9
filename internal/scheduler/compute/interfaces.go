package compute

import (
	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// RequestIterator iterates over pending scheduling requests.
// Remove deletes the request most recently returned by Next without invalidating the iteration.
type RequestIterator interface {
	Next() (*model.SchedulingRequest, bool)
	Remove()
	Rewind()
}

// ComputeScheduler decides which pending request runs next and on which host.
// Implementations are not safe for concurrent use.
type ComputeScheduler interface {
	// AddHost makes host available for placement.
	AddHost(host *model.HostView)
	// RemoveHost stops host from being considered for placement.
	RemoveHost(host *model.HostView)
	// RemoveTask notifies the scheduler that task has left host.
	RemoveTask(task *model.ServiceTask, host *model.HostView)
	// Select makes at most one placement decision over the requests of it.
	// A placed request is removed from the iterator, as are cancelled requests encountered during the scan.
	Select(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult
}

// TaskSelector is implemented by schedulers that choose which request to place before choosing a host.
type TaskSelector interface {
	// SelectTask returns the request to be placed next, or nil if no request should be placed this pass.
	SelectTask(ctx *schedcontext.Context, it RequestIterator) *model.SchedulingRequest
}

// CarbonReceiver is implemented by schedulers consuming carbon intensity samples.
type CarbonReceiver interface {
	UpdateCarbonIntensity(value float64)
}
