package optimiser

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"

	"github.com/carbonsched/carbonsched/internal/common/schederrors"
)

// Unscheduled marks a task without a start slot in Result.Assignment.
const Unscheduled = -1

type Params struct {
	// Number of consecutive slots, starting at the earliest feasible one, considered for each task.
	SearchWindowSize int
	// Maximum number of candidate start slots branched on per task.
	MaxSlotsToTry int
	// Maximum number of search nodes expanded per call to Search.
	MaxExpansions int
}

// Optimiser searches for start slots minimising the forecasted carbon exposure of a batch,
// subject to the precedence constraints between its tasks.
type Optimiser struct {
	params Params
}

func New(params Params) (*Optimiser, error) {
	if params.SearchWindowSize < 1 {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "searchWindowSize",
			Value:   params.SearchWindowSize,
			Message: "outside allowed range [1, Inf)",
		})
	}
	if params.MaxSlotsToTry < 1 {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "maxSlotsToTry",
			Value:   params.MaxSlotsToTry,
			Message: "outside allowed range [1, Inf)",
		})
	}
	if params.MaxExpansions < 1 {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "maxExpansions",
			Value:   params.MaxExpansions,
			Message: "outside allowed range [1, Inf)",
		})
	}
	return &Optimiser{params: params}, nil
}

func MustNew(params Params) *Optimiser {
	opt, err := New(params)
	if err != nil {
		panic(err)
	}
	return opt
}

type Result struct {
	// Start slot of each task relative to Batch.BaseSlot, or Unscheduled.
	Assignment []int
	// Forecasted carbon exposure of Assignment; +Inf if no complete assignment was found.
	Cost       float64
	Expansions int
}

func (r *Result) Feasible() bool {
	return !math.IsInf(r.Cost, 1)
}

// StartSlots returns the absolute start slot of every scheduled task, keyed by task id.
func (r *Result) StartSlots(batch *Batch) map[string]int64 {
	rv := make(map[string]int64, len(r.Assignment))
	for i, slot := range r.Assignment {
		if slot != Unscheduled {
			rv[batch.Tasks[i].Id] = batch.BaseSlot + int64(slot)
		}
	}
	return rv
}

type candidate struct {
	slot int
	cost float64
}

// node is a partial assignment on the search stack: the task at position depth of the topological order
// starts at slot, and cost is the exposure accumulated along the branch including that task.
type node struct {
	depth int
	slot  int
	cost  float64
}

// Search runs a depth-first branch-and-bound over the tasks of batch in the given topological order.
// forecast[k] is the carbon intensity expected during relative slot nowSlot+k; slots past the end of the
// forecast are costed at its last value. No task is started before nowSlot.
func (o *Optimiser) Search(batch *Batch, order []int, forecast []float64, nowSlot int) *Result {
	n := batch.Len()
	best := &Result{
		Assignment: make([]int, n),
		Cost:       math.Inf(1),
	}
	for i := range best.Assignment {
		best.Assignment[i] = Unscheduled
	}
	if n == 0 {
		best.Cost = 0
		return best
	}

	assignment := make([]int, n)
	var stack []node
	push := func(depth int, baseCost float64) {
		candidates := o.candidates(batch, assignment, order[depth], forecast, nowSlot)
		// Pushed in reverse so that the cheapest candidate is expanded first.
		for i := len(candidates) - 1; i >= 0; i-- {
			stack = append(stack, node{depth: depth, slot: candidates[i].slot, cost: baseCost + candidates[i].cost})
		}
	}

	push(0, 0)
	for len(stack) > 0 && best.Expansions < o.params.MaxExpansions {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.cost >= best.Cost {
			continue
		}
		best.Expansions++
		// Entries below top at shallower depths are the ancestors of top, so assignment holds its branch.
		assignment[order[top.depth]] = top.slot
		if top.depth == n-1 {
			best.Cost = top.cost
			copy(best.Assignment, assignment)
			continue
		}
		push(top.depth+1, top.cost)
	}
	return best
}

// candidates returns the start slots branched on for task i, cheapest first.
// Slots finishing after the deadline of the task are excluded unless no slot in the window meets it,
// in which case the earliest feasible slot is the only candidate.
func (o *Optimiser) candidates(batch *Batch, assignment []int, i int, forecast []float64, nowSlot int) []candidate {
	earliest := batch.ReleaseSlot[i]
	if nowSlot > earliest {
		earliest = nowSlot
	}
	for _, p := range batch.Parents[i] {
		if end := assignment[p] + batch.DurationSlots[p]; end > earliest {
			earliest = end
		}
	}
	duration := batch.DurationSlots[i]
	deadline := batch.DeadlineSlot[i]

	rv := make([]candidate, 0, o.params.SearchWindowSize)
	for slot := earliest; slot < earliest+o.params.SearchWindowSize; slot++ {
		if slot+duration > deadline {
			break
		}
		rv = append(rv, candidate{slot: slot, cost: windowCost(forecast, slot-nowSlot, duration)})
	}
	if len(rv) == 0 {
		return []candidate{{slot: earliest, cost: windowCost(forecast, earliest-nowSlot, duration)}}
	}
	slices.SortStableFunc(rv, func(a, b candidate) bool {
		return a.cost < b.cost
	})
	if len(rv) > o.params.MaxSlotsToTry {
		rv = rv[:o.params.MaxSlotsToTry]
	}
	return rv
}

// windowCost is the sum of forecast[from:from+length], extending the forecast with its last value.
func windowCost(forecast []float64, from, length int) float64 {
	if len(forecast) == 0 || length <= 0 {
		return 0
	}
	to := from + length
	cost := 0.0
	if from < len(forecast) {
		end := to
		if end > len(forecast) {
			end = len(forecast)
		}
		cost += floats.Sum(forecast[from:end])
	}
	start := from
	if start < len(forecast) {
		start = len(forecast)
	}
	if beyond := to - start; beyond > 0 {
		cost += float64(beyond) * forecast[len(forecast)-1]
	}
	return cost
}

// Greedy assigns every task of batch the slot nowSlot, relative to batch.BaseSlot, so that readiness
// is gated only by the parents of each task. It is the plan used when Search finds no complete
// assignment or the batch cannot be ordered.
func Greedy(batch *Batch, nowSlot int) []int {
	rv := make([]int, batch.Len())
	for i := range rv {
		rv[i] = nowSlot
	}
	return rv
}
