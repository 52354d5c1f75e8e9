package compute

import (
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// workflowScorer chooses among pending requests by deadline urgency, dependency chain length and,
// while few requests are ready, the number of pending dependants.
type workflowScorer struct {
	config configuration.WorkflowAwareConfig
	// Maps *model.ServiceTask to its dependency chain length. Tasks are immutable, so entries never go stale.
	chainLengths *lru.Cache
	clock        clock.PassiveClock
	// Difference between the scheduler clock and the time base of task timestamps,
	// fixed from the first request seen.
	offset    time.Duration
	offsetSet bool
}

func newWorkflowScorer(config configuration.WorkflowAwareConfig, clock clock.PassiveClock) (*workflowScorer, error) {
	size := config.ChainLengthCacheSize
	if size < 1 {
		size = configuration.DefaultChainLengthCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &workflowScorer{
		config:       config,
		chainLengths: cache,
		clock:        clock,
	}, nil
}

func (w *workflowScorer) chainLength(task *model.ServiceTask) int {
	if v, ok := w.chainLengths.Get(task); ok {
		return v.(int)
	}
	l := task.MaxDependencyChainLength()
	w.chainLengths.Add(task, l)
	return l
}

// observe fixes the clock offset from the first request ever passed to it.
func (w *workflowScorer) observe(req *model.SchedulingRequest) {
	if w.offsetSet {
		return
	}
	w.offset = req.SubmitTime.Sub(req.Task.SubmittedAt)
	w.offsetSet = true
}

// taskNow returns the current time in the time base of task timestamps.
func (w *workflowScorer) taskNow() time.Time {
	return w.clock.Now().Add(-w.offset)
}

// urgency is the inverse of the slack of task in seconds, or +Inf once the deadline has passed.
// Tasks without a deadline have no urgency.
func urgency(task *model.ServiceTask, now time.Time) float64 {
	if !task.HasDeadline() {
		return 0
	}
	slack := task.Deadline.Sub(now).Seconds()
	if slack <= 0 {
		return math.Inf(1)
	}
	return 1 / slack
}

// selectTask scans up to TaskLookaheadThreshold non-cancelled requests, removing cancelled ones on the way,
// and returns the highest scoring request whose parents are all terminal and which admit accepts.
// Ties are won by the request seen first. admit may be nil.
func (w *workflowScorer) selectTask(
	ctx *schedcontext.Context,
	it RequestIterator,
	admit func(*model.SchedulingRequest, time.Time) bool,
) *model.SchedulingRequest {
	var scanned []*model.SchedulingRequest
	for len(scanned) < w.config.TaskLookaheadThreshold {
		req, ok := it.Next()
		if !ok {
			break
		}
		if req.IsCancelled() {
			it.Remove()
			continue
		}
		w.observe(req)
		scanned = append(scanned, req)
	}
	if len(scanned) == 0 {
		return nil
	}

	now := w.taskNow()
	dependants := make(map[*model.ServiceTask]int)
	candidates := make([]*model.SchedulingRequest, 0, len(scanned))
	for _, req := range scanned {
		for _, p := range req.Task.Parents {
			dependants[p]++
		}
		if !req.Task.ParentsTerminal() {
			continue
		}
		if admit != nil && !admit(req, now) {
			continue
		}
		candidates = append(candidates, req)
	}
	scoreParallelism := w.config.EnableParallelism && len(candidates) < w.config.ParallelismReadyPoolThreshold

	var best *model.SchedulingRequest
	bestScore := math.Inf(-1)
	for _, req := range candidates {
		score := w.config.WeightCriticalDependencyChain * float64(w.chainLength(req.Task))
		if w.config.WeightUrgency != 0 {
			score += w.config.WeightUrgency * urgency(req.Task, now)
		}
		if scoreParallelism {
			score += w.config.WeightParallelism * float64(dependants[req.Task])
		}
		if best == nil || score > bestScore {
			best = req
			bestScore = score
		}
	}
	if best != nil {
		ctx.Debugf("selected task %s with score %f among %d ready of %d scanned requests", best.Task.Id, bestScore, len(candidates), len(scanned))
	}
	return best
}
