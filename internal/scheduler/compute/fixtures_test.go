package compute

import (
	"time"

	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
	"github.com/carbonsched/carbonsched/internal/scheduler/queue"
)

var (
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx   = schedcontext.Background()
)

func testHost(id string, cpu, memory string) *model.HostView {
	return model.NewHostView(id, "cluster-a", model.NewResources(cpu, memory, "0"))
}

func testTask(id string, cpu, memory string, parents ...*model.ServiceTask) *model.ServiceTask {
	return &model.ServiceTask{
		Id:          id,
		WorkflowId:  "workflow",
		Demand:      model.NewResources(cpu, memory, "0"),
		SubmittedAt: epoch,
		Duration:    time.Hour,
		Parents:     parents,
	}
}

func completed(task *model.ServiceTask) *model.ServiceTask {
	task.SetState(model.TaskStateCompleted)
	return task
}

func queueOf(tasks ...*model.ServiceTask) (*queue.RequestQueue, []*model.SchedulingRequest) {
	q := queue.NewRequestQueue()
	requests := make([]*model.SchedulingRequest, len(tasks))
	for i, task := range tasks {
		requests[i] = model.NewSchedulingRequest(task, task.SubmittedAt)
		q.Push(requests[i])
	}
	return q, requests
}

func hostIds(hosts []*model.HostView) []string {
	rv := make([]string, len(hosts))
	for i, h := range hosts {
		rv[i] = h.Id
	}
	return rv
}
