package compute

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/common/schederrors"
	"github.com/carbonsched/carbonsched/internal/scheduler/carbon"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/filters"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
	"github.com/carbonsched/carbonsched/internal/scheduler/optimiser"
	"github.com/carbonsched/carbonsched/internal/scheduler/weighers"
)

// CarbonAwareWorkflowScheduler periodically plans start slots for a batch of pending tasks that minimise their
// forecasted carbon exposure, and only places a task once its planned slot has arrived and its parents are done.
// Among those, the task deepest in its workflow is placed first, on the host that becomes available first among
// the best ranked hosts.
type CarbonAwareWorkflowScheduler struct {
	name      string
	selector  *hostSelector
	config    configuration.CarbonAwareConfig
	optimiser *optimiser.Optimiser
	model     carbon.CarbonModel
	clock     clock.PassiveClock
	metrics   *metrics.Metrics
	scorer    *workflowScorer

	// Absolute start slot committed for each task.
	startSlots       map[string]int64
	lastOptimization time.Time
	optimised        bool
	latestIntensity  float64
	hasIntensity     bool
}

func NewCarbonAwareWorkflowScheduler(
	name string,
	hostFilters []filters.HostFilter,
	hostWeighers []weighers.HostWeigher,
	subsetSize int,
	config configuration.CarbonAwareConfig,
	carbonModel carbon.CarbonModel,
	clock clock.PassiveClock,
	m *metrics.Metrics,
) (*CarbonAwareWorkflowScheduler, error) {
	if config.SlotLength <= 0 {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "slotLength",
			Value:   config.SlotLength,
			Message: "must be positive",
		})
	}
	selector, err := newHostSelector(hostFilters, hostWeighers, subsetSize)
	if err != nil {
		return nil, err
	}
	opt, err := optimiser.New(optimiser.Params{
		SearchWindowSize: config.SearchWindowSize,
		MaxSlotsToTry:    config.MaxSlotsToTry,
		MaxExpansions:    config.MaxExpansions,
	})
	if err != nil {
		return nil, err
	}
	scorer, err := newWorkflowScorer(configuration.WorkflowAwareConfig{
		ChainLengthCacheSize: configuration.DefaultChainLengthCacheSize,
	}, clock)
	if err != nil {
		return nil, err
	}
	return &CarbonAwareWorkflowScheduler{
		name:       name,
		selector:   selector,
		config:     config,
		optimiser:  opt,
		model:      carbonModel,
		clock:      clock,
		metrics:    m,
		scorer:     scorer,
		startSlots: make(map[string]int64),
	}, nil
}

func (s *CarbonAwareWorkflowScheduler) AddHost(host *model.HostView) {
	s.selector.addHost(host)
}

func (s *CarbonAwareWorkflowScheduler) RemoveHost(host *model.HostView) {
	s.selector.removeHost(host)
}

func (s *CarbonAwareWorkflowScheduler) RemoveTask(_ *model.ServiceTask, _ *model.HostView) {}

// UpdateCarbonIntensity records the latest sample, which is used as a flat forecast when no carbon model is attached.
func (s *CarbonAwareWorkflowScheduler) UpdateCarbonIntensity(value float64) {
	s.latestIntensity = value
	s.hasIntensity = true
}

// StartSlot returns the absolute slot committed for the task with the given id.
func (s *CarbonAwareWorkflowScheduler) StartSlot(taskId string) (int64, bool) {
	slot, ok := s.startSlots[taskId]
	return slot, ok
}

func (s *CarbonAwareWorkflowScheduler) Select(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	result := placeSelected(ctx, it, s.SelectTask(ctx, it), s.selector.earliestAvailable)
	if result.Type == model.ResultSuccess {
		delete(s.startSlots, result.Request.Task.Id)
	}
	s.metrics.ReportResult(s.name, result.Type)
	return result
}

// SelectTask re-plans start slots if the optimisation interval has elapsed, then returns the ready request
// with the longest dependency chain. A request is ready once its committed slot, if any, has arrived and
// all of its parents are terminal.
func (s *CarbonAwareWorkflowScheduler) SelectTask(ctx *schedcontext.Context, it RequestIterator) *model.SchedulingRequest {
	now := s.clock.Now()
	if !s.optimised || now.Sub(s.lastOptimization) >= s.config.OptimizationInterval {
		s.optimise(ctx, it, now)
		s.lastOptimization = now
		s.optimised = true
	}

	nowSlot := optimiser.SlotOf(now, s.config.SlotLength)
	var best *model.SchedulingRequest
	bestLength := 0
	it.Rewind()
	for req, ok := it.Next(); ok; req, ok = it.Next() {
		if req.IsCancelled() {
			it.Remove()
			delete(s.startSlots, req.Task.Id)
			continue
		}
		if slot, ok := s.startSlots[req.Task.Id]; ok && slot > nowSlot {
			continue
		}
		if !req.Task.ParentsTerminal() {
			continue
		}
		if l := s.scorer.chainLength(req.Task); best == nil || l > bestLength {
			best = req
			bestLength = l
		}
	}
	return best
}

// optimise plans start slots for the first BatchSize pending requests.
func (s *CarbonAwareWorkflowScheduler) optimise(ctx *schedcontext.Context, it RequestIterator, now time.Time) {
	var requests []*model.SchedulingRequest
	it.Rewind()
	for req, ok := it.Next(); ok && len(requests) < s.config.BatchSize; req, ok = it.Next() {
		if req.IsCancelled() {
			it.Remove()
			delete(s.startSlots, req.Task.Id)
			continue
		}
		requests = append(requests, req)
	}
	it.Rewind()
	if len(requests) == 0 {
		s.metrics.ReportOptimiserRun(metrics.OptimiserOutcomeEmpty, 0, 0)
		return
	}

	batch, err := optimiser.BuildBatch(requests, s.config.SlotLength)
	if err != nil {
		ctx.WithError(err).Warn("failed to build optimisation batch")
		return
	}
	nowSlot := optimiser.SlotOf(now, s.config.SlotLength)

	order, err := batch.TopologicalOrder()
	if err != nil {
		var cycleErr *schederrors.ErrCyclicDependency
		if errors.As(err, &cycleErr) {
			ctx.WithError(err).Warn("falling back to greedy placement")
			s.metrics.ReportOptimiserRun(metrics.OptimiserOutcomeCyclic, 0, 0)
			s.commitGreedy(batch, nowSlot)
			return
		}
		ctx.WithError(err).Warn("failed to order optimisation batch")
		return
	}

	result := s.optimiser.Search(batch, order, s.forecast(now), int(nowSlot-batch.BaseSlot))
	if !result.Feasible() {
		ctx.WithFields(logrus.Fields{
			"tasks":      batch.Len(),
			"expansions": result.Expansions,
		}).Warn("no complete schedule found; falling back to greedy placement")
		s.metrics.ReportOptimiserRun(metrics.OptimiserOutcomeGreedy, 0, result.Expansions)
		s.commitGreedy(batch, nowSlot)
		return
	}
	for id, slot := range result.StartSlots(batch) {
		s.startSlots[id] = slot
	}
	ctx.Debugf("planned %d tasks with forecasted exposure %f after %d expansions", batch.Len(), result.Cost, result.Expansions)
	s.metrics.ReportOptimiserRun(metrics.OptimiserOutcomeOptimal, result.Cost, result.Expansions)
}

// commitGreedy commits the greedy plan for every task of batch without a committed slot.
func (s *CarbonAwareWorkflowScheduler) commitGreedy(batch *optimiser.Batch, nowSlot int64) {
	slots := optimiser.Greedy(batch, int(nowSlot-batch.BaseSlot))
	for i, task := range batch.Tasks {
		if _, ok := s.startSlots[task.Id]; !ok {
			s.startSlots[task.Id] = batch.BaseSlot + int64(slots[i])
		}
	}
}

// forecast returns HorizonSlots carbon intensity values starting at the slot containing now.
// Without a carbon model, or if the model has no data, the forecast is flat at the latest sample,
// or DefaultCarbonIntensity if no sample has been received.
func (s *CarbonAwareWorkflowScheduler) forecast(now time.Time) []float64 {
	if s.model != nil {
		slotStart := time.Unix(0, optimiser.SlotOf(now, s.config.SlotLength)*int64(s.config.SlotLength)).In(now.Location())
		if rv := s.model.Forecast(slotStart, s.config.SlotLength, s.config.HorizonSlots); len(rv) > 0 {
			return rv
		}
	}
	value := s.config.DefaultCarbonIntensity
	if s.hasIntensity {
		value = s.latestIntensity
	}
	rv := make([]float64, s.config.HorizonSlots)
	for i := range rv {
		rv[i] = value
	}
	return rv
}
