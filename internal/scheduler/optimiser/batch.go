package optimiser

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/carbonsched/carbonsched/internal/common/schederrors"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// NoDeadline is the deadline slot of a task without a deadline.
const NoDeadline = math.MaxInt32

// Batch is a snapshot of pending tasks laid out for the search.
// All per-task slices are indexed by the compact batch index of the task.
// Slots are relative to BaseSlot, the slot of the earliest submission in the batch.
type Batch struct {
	Tasks []*model.ServiceTask
	// Batch indices of the dependency predecessors of each task.
	// Parents outside the batch are dropped, so their dependants are roots for this run.
	Parents       [][]int
	DurationSlots []int
	ReleaseSlot   []int
	// Exclusive upper bound on the end slot of each task, or NoDeadline.
	DeadlineSlot []int
	BaseSlot     int64
	SlotLength   time.Duration
}

// SlotOf returns the absolute slot containing t.
func SlotOf(t time.Time, slotLength time.Duration) int64 {
	return t.UnixNano() / int64(slotLength)
}

// BuildBatch lays out the tasks of requests for the search.
// Requests are taken in the order given; tasks appearing more than once are only included once.
func BuildBatch(requests []*model.SchedulingRequest, slotLength time.Duration) (*Batch, error) {
	if slotLength <= 0 {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "slotLength",
			Value:   slotLength,
			Message: "must be positive",
		})
	}
	b := &Batch{SlotLength: slotLength}
	if len(requests) == 0 {
		return b, nil
	}

	indexByTask := make(map[*model.ServiceTask]int, len(requests))
	submitTimes := make([]time.Time, 0, len(requests))
	for _, req := range requests {
		if _, ok := indexByTask[req.Task]; ok {
			continue
		}
		indexByTask[req.Task] = len(b.Tasks)
		b.Tasks = append(b.Tasks, req.Task)
		submitTimes = append(submitTimes, req.SubmitTime)
	}

	earliest := submitTimes[0]
	for _, t := range submitTimes[1:] {
		if t.Before(earliest) {
			earliest = t
		}
	}
	b.BaseSlot = SlotOf(earliest, slotLength)

	n := len(b.Tasks)
	b.Parents = make([][]int, n)
	b.DurationSlots = make([]int, n)
	b.ReleaseSlot = make([]int, n)
	b.DeadlineSlot = make([]int, n)
	for i, task := range b.Tasks {
		for _, p := range task.Parents {
			if j, ok := indexByTask[p]; ok && !slices.Contains(b.Parents[i], j) {
				b.Parents[i] = append(b.Parents[i], j)
			}
		}
		b.DurationSlots[i] = durationSlots(task.Duration, slotLength)
		release := int(SlotOf(submitTimes[i], slotLength) - b.BaseSlot)
		if release < 0 {
			release = 0
		}
		b.ReleaseSlot[i] = release
		if task.HasDeadline() {
			b.DeadlineSlot[i] = int(SlotOf(task.Deadline, slotLength) - b.BaseSlot)
		} else {
			b.DeadlineSlot[i] = NoDeadline
		}
	}
	return b, nil
}

// durationSlots is the number of slots a task of duration d occupies, i.e., ceil(d / slotLength).
// Every task occupies at least one slot.
func durationSlots(d, slotLength time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int((d + slotLength - 1) / slotLength)
}

func (b *Batch) Len() int {
	return len(b.Tasks)
}

// TopologicalOrder returns the batch indices ordered such that every task follows all of its parents.
// Ties are broken by batch index, so the order is deterministic.
// If the dependency edges contain a cycle, an *schederrors.ErrCyclicDependency is returned.
func (b *Batch) TopologicalOrder() ([]int, error) {
	n := b.Len()
	inDegree := make([]int, n)
	children := make([][]int, n)
	for i, parents := range b.Parents {
		inDegree[i] = len(parents)
		for _, p := range parents {
			children[p] = append(children[p], i)
		}
	}
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, n)
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)
		for _, c := range children[i] {
			inDegree[c]--
			if inDegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(order) < n {
		var ids []string
		for i := 0; i < n; i++ {
			if inDegree[i] > 0 {
				ids = append(ids, b.Tasks[i].Id)
			}
		}
		return nil, errors.WithStack(&schederrors.ErrCyclicDependency{TaskIds: ids})
	}
	return order, nil
}
