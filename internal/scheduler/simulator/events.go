package simulator

import (
	"time"

	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// Event is a simulator-internal event.
type Event struct {
	// Simulated time at which the event fires.
	time time.Time
	// Each event is assigned a sequence number.
	// Events with equal time are ordered by their sequence number.
	sequenceNumber int
	// One of submitEvent, finishEvent, carbonEvent or scheduleEvent.
	payload any
	// Maintained by the heap.Interface methods.
	index int
}

// submitEvent makes a task's scheduling request visible to the scheduler.
type submitEvent struct {
	task *model.ServiceTask
}

// finishEvent marks the end of a running task.
type finishEvent struct {
	taskId string
}

// carbonEvent delivers a new carbon-intensity sample.
type carbonEvent struct {
	value float64
}

// scheduleEvent is an event indicating the scheduler should be run.
type scheduleEvent struct{}

type EventLog []Event

func (el EventLog) Len() int { return len(el) }

func (el EventLog) Less(i, j int) bool {
	if el[i].time.Equal(el[j].time) {
		return el[i].sequenceNumber < el[j].sequenceNumber
	}
	return el[i].time.Before(el[j].time)
}

func (el EventLog) Swap(i, j int) {
	el[i], el[j] = el[j], el[i]
	el[i].index = i
	el[j].index = j
}

func (el *EventLog) Push(x any) {
	item := x.(Event)
	item.index = len(*el)
	*el = append(*el, item)
}

func (el *EventLog) Pop() any {
	old := *el
	n := len(old)
	item := old[n-1]
	old[n-1] = Event{}
	item.index = -1
	*el = old[0 : n-1]
	return item
}
