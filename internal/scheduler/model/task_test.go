package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxDependencyChainLength(t *testing.T) {
	a := &ServiceTask{Id: "a"}
	b := &ServiceTask{Id: "b", Parents: []*ServiceTask{a}}
	c := &ServiceTask{Id: "c", Parents: []*ServiceTask{b}}
	d := &ServiceTask{Id: "d", Parents: []*ServiceTask{a, c}}
	e := &ServiceTask{Id: "e", Parents: []*ServiceTask{a, a}}

	tests := map[string]struct {
		task     *ServiceTask
		expected int
	}{
		"root":              {task: a, expected: 1},
		"single parent":     {task: b, expected: 2},
		"chain":             {task: c, expected: 3},
		"longest of two":    {task: d, expected: 4},
		"duplicate parents": {task: e, expected: 2},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.task.MaxDependencyChainLength())
		})
	}
}

func TestMaxDependencyChainLength_Cycle(t *testing.T) {
	a := &ServiceTask{Id: "a"}
	b := &ServiceTask{Id: "b", Parents: []*ServiceTask{a}}
	a.Parents = []*ServiceTask{b}
	// The closing edge is ignored, so this terminates.
	assert.Equal(t, 2, a.MaxDependencyChainLength())
}

func TestMaxDependencyChainLength_LongChain(t *testing.T) {
	prev := &ServiceTask{Id: "0"}
	for i := 1; i < 100000; i++ {
		prev = &ServiceTask{Parents: []*ServiceTask{prev}}
	}
	assert.Equal(t, 100000, prev.MaxDependencyChainLength())
}

func TestParentsTerminal(t *testing.T) {
	tests := map[string]struct {
		states   []TaskState
		expected bool
	}{
		"no parents":      {expected: true},
		"completed":       {states: []TaskState{TaskStateCompleted}, expected: true},
		"deleted":         {states: []TaskState{TaskStateDeleted, TaskStateTerminated}, expected: true},
		"one running":     {states: []TaskState{TaskStateCompleted, TaskStateRunning}, expected: false},
		"error not final": {states: []TaskState{TaskStateError}, expected: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			task := &ServiceTask{Id: "child"}
			for _, s := range tc.states {
				p := &ServiceTask{}
				p.SetState(s)
				task.Parents = append(task.Parents, p)
			}
			assert.Equal(t, tc.expected, task.ParentsTerminal())
		})
	}
}

func TestRequestCancel(t *testing.T) {
	req := NewSchedulingRequest(&ServiceTask{Id: "a"}, epoch)
	assert.False(t, req.IsCancelled())
	req.Cancel()
	assert.True(t, req.IsCancelled())
}
