package queue

import (
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// RequestQueue holds pending scheduling requests in submission order.
// It is not safe for concurrent use; all access must happen on the simulation's control loop.
type RequestQueue struct {
	requests []*model.SchedulingRequest
}

func NewRequestQueue() *RequestQueue {
	return &RequestQueue{}
}

// Push appends req to the back of the queue.
func (q *RequestQueue) Push(req *model.SchedulingRequest) {
	q.requests = append(q.requests, req)
}

func (q *RequestQueue) Len() int {
	return len(q.requests)
}

// Contains is true if req is still queued.
func (q *RequestQueue) Contains(req *model.SchedulingRequest) bool {
	for _, r := range q.requests {
		if r == req {
			return true
		}
	}
	return false
}

// Requests returns a copy of the queued requests in queue order.
func (q *RequestQueue) Requests() []*model.SchedulingRequest {
	rv := make([]*model.SchedulingRequest, len(q.requests))
	copy(rv, q.requests)
	return rv
}

// Iterator returns an iterator positioned before the first request.
func (q *RequestQueue) Iterator() *Iterator {
	return &Iterator{q: q, current: -1}
}

func (q *RequestQueue) removeAt(i int) {
	copy(q.requests[i:], q.requests[i+1:])
	q.requests[len(q.requests)-1] = nil
	q.requests = q.requests[:len(q.requests)-1]
}

// Iterator is an index cursor over a RequestQueue supporting removal of the current element.
// After Remove, the next call to Next returns the element that followed the removed one.
type Iterator struct {
	q *RequestQueue
	// Index of the element most recently returned by Next, or -1 if none has been returned
	// since construction, the last Rewind or the last Remove.
	current int
	// Index of the element Next will return.
	next int
}

// Next returns the next request, or false once the queue is exhausted.
func (it *Iterator) Next() (*model.SchedulingRequest, bool) {
	if it.next >= len(it.q.requests) {
		it.current = -1
		return nil, false
	}
	it.current = it.next
	it.next++
	return it.q.requests[it.current], true
}

// Remove deletes the request most recently returned by Next. It is a no-op if there is no such request
// or it has already been removed.
func (it *Iterator) Remove() {
	if it.current < 0 {
		return
	}
	it.q.removeAt(it.current)
	it.next = it.current
	it.current = -1
}

// Rewind positions the iterator before the first request again.
func (it *Iterator) Rewind() {
	it.current = -1
	it.next = 0
}
