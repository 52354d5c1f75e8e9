package model

import (
	"fmt"
	"time"
)

type TaskState int

const (
	TaskStatePending TaskState = iota
	TaskStateProvisioning
	TaskStateRunning
	TaskStateCompleted
	TaskStateDeleted
	TaskStateTerminated
	TaskStateError
)

var taskStateNames = map[TaskState]string{
	TaskStatePending:      "pending",
	TaskStateProvisioning: "provisioning",
	TaskStateRunning:      "running",
	TaskStateCompleted:    "completed",
	TaskStateDeleted:      "deleted",
	TaskStateTerminated:   "terminated",
	TaskStateError:        "error",
}

func (s TaskState) String() string {
	if name, ok := taskStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TaskState(%d)", int(s))
}

// IsTerminal is true for the states after which a task never runs again.
// Dependants of a task may start once it is in one of these states.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateDeleted || s == TaskStateTerminated
}

type TaskNature struct {
	// If true, the task may delay its start, within its deadline, to avoid high-carbon periods.
	Deferrable bool
}

// ServiceTask describes a compute task. Apart from its state, which is owned by the surrounding
// service, a task is immutable once submitted.
type ServiceTask struct {
	Id         string
	WorkflowId string
	Demand     Resources
	// Instant at which the task was submitted, in the time base of the workload trace.
	SubmittedAt time.Time
	Duration    time.Duration
	// Zero if the task has no deadline.
	Deadline time.Time
	Nature   TaskNature
	// If non-empty, the task may only be placed on hosts of this cluster.
	Cluster string
	// Tasks that must reach a terminal state before this task may start.
	Parents []*ServiceTask

	state TaskState
}

func (t *ServiceTask) State() TaskState {
	return t.state
}

func (t *ServiceTask) SetState(state TaskState) {
	t.state = state
}

func (t *ServiceTask) HasDeadline() bool {
	return !t.Deadline.IsZero()
}

// ParentsTerminal is true if every parent of the task is in a terminal state.
func (t *ServiceTask) ParentsTerminal() bool {
	for _, p := range t.Parents {
		if !p.State().IsTerminal() {
			return false
		}
	}
	return true
}

// MaxDependencyChainLength returns the number of tasks on the longest path from t to a task without parents,
// counting t itself. A task without parents has chain length 1.
// Edges closing a cycle are ignored so that the method terminates on malformed graphs.
func (t *ServiceTask) MaxDependencyChainLength() int {
	return t.maxDependencyChainLength(make(map[*ServiceTask]int))
}

func (t *ServiceTask) maxDependencyChainLength(memo map[*ServiceTask]int) int {
	type frame struct {
		task *ServiceTask
		next int
		best int
	}
	onStack := map[*ServiceTask]bool{t: true}
	stack := []*frame{{task: t}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.task.Parents) {
			p := top.task.Parents[top.next]
			top.next++
			if l, ok := memo[p]; ok {
				if l > top.best {
					top.best = l
				}
				continue
			}
			if onStack[p] {
				continue
			}
			onStack[p] = true
			stack = append(stack, &frame{task: p})
			continue
		}
		l := top.best + 1
		memo[top.task] = l
		delete(onStack, top.task)
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			if l > parent.best {
				parent.best = l
			}
		}
	}
	return memo[t]
}

func (t *ServiceTask) String() string {
	return fmt.Sprintf("task %s (demand %s, duration %s)", t.Id, t.Demand, t.Duration)
}
