package simulator

import (
	"container/heap"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/carbon"
	"github.com/carbonsched/carbonsched/internal/scheduler/compute"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
	"github.com/carbonsched/carbonsched/internal/scheduler/queue"
)

var epochStart = time.Unix(0, 0).UTC()

const (
	DefaultSchedulePeriod = time.Minute
	DefaultMaxIdle        = 48 * time.Hour
)

type Options struct {
	// Interval between scheduling passes while requests are queued.
	SchedulePeriod time.Duration
	// The simulation stops once no task has been running for this long and no submissions remain.
	MaxIdle time.Duration
	// If positive, the simulation stops once this much simulated time has passed.
	HardTermination time.Duration
}

func (o *Options) applyDefaults() {
	if o.SchedulePeriod <= 0 {
		o.SchedulePeriod = DefaultSchedulePeriod
	}
	if o.MaxIdle <= 0 {
		o.MaxIdle = DefaultMaxIdle
	}
}

// placement is a task running on a host.
type placement struct {
	task   *model.ServiceTask
	hostId string
	start  time.Time
	end    time.Time
}

// Simulator drives a ComputeScheduler over a simulated cluster, workload and carbon trace.
// It owns the simulated clock, which it also hands to the scheduler.
type Simulator struct {
	ClusterSpec     *ClusterSpec
	WorkloadSpec    *WorkloadSpec
	CarbonSpec      *CarbonSpec
	SchedulerConfig configuration.SchedulerConfig

	options   Options
	scheduler compute.ComputeScheduler
	trace     *carbon.TraceModel
	hosts     *hostDb
	queue     *queue.RequestQueue
	// Current simulated time.
	time time.Time
	// Events to be processed, ordered by time.
	eventLog       EventLog
	sequenceNumber int
	// Times at which a scheduleEvent is already in the log.
	pendingSchedules map[time.Time]bool
	pendingSubmits   int
	rand             *rand.Rand
	// Source of task ids, seeded like rand so that ids are reproducible.
	entropy io.Reader

	tasksById        map[string]*model.ServiceTask
	dependantsById   map[string][]*model.ServiceTask
	requestsByTaskId map[string]*model.SchedulingRequest
	// For workloads submitted on demand, the number of parents of each task yet to complete.
	remainingParents map[string]int
	runningByTaskId  map[string]*placement
	runningByHostId  map[string]map[string]*placement
	// Tasks neither completed nor failed.
	outstanding int
	// Time since which no task has been running, or zero if one is.
	idleSince time.Time

	summary *Summary
}

var _ clock.PassiveClock = &Simulator{}

// NewSimulator creates a simulator and the scheduler it drives. carbonSpec may be nil,
// in which case no carbon samples are delivered and carbon exposure is not accounted.
func NewSimulator(
	clusterSpec *ClusterSpec,
	workloadSpec *WorkloadSpec,
	carbonSpec *CarbonSpec,
	schedulerConfig configuration.SchedulerConfig,
	m *metrics.Metrics,
	options Options,
) (*Simulator, error) {
	if err := validateClusterSpec(clusterSpec); err != nil {
		return nil, err
	}
	if err := validateWorkloadSpec(workloadSpec); err != nil {
		return nil, err
	}
	if carbonSpec != nil {
		if err := validateCarbonSpec(carbonSpec); err != nil {
			return nil, err
		}
	}
	options.applyDefaults()
	hosts, err := newHostDb()
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		ClusterSpec:      clusterSpec,
		WorkloadSpec:     expandRepeatingTemplates(workloadSpec),
		CarbonSpec:       carbonSpec,
		SchedulerConfig:  schedulerConfig,
		options:          options,
		hosts:            hosts,
		queue:            queue.NewRequestQueue(),
		time:             epochStart,
		pendingSchedules: make(map[time.Time]bool),
		rand:             rand.New(rand.NewSource(workloadSpec.RandomSeed)),
		entropy:          ulid.Monotonic(rand.New(rand.NewSource(workloadSpec.RandomSeed)), 0),
		tasksById:        make(map[string]*model.ServiceTask),
		dependantsById:   make(map[string][]*model.ServiceTask),
		requestsByTaskId: make(map[string]*model.SchedulingRequest),
		remainingParents: make(map[string]int),
		runningByTaskId:  make(map[string]*placement),
		runningByHostId:  make(map[string]map[string]*placement),
		idleSince:        epochStart,
		summary:          newSummary(),
	}
	s.summary.Cluster = clusterSpec.Name
	s.summary.Workload = workloadSpec.Name
	s.summary.Scheduler = schedulerConfig.Name

	var carbonModel carbon.CarbonModel
	if carbonSpec != nil {
		s.trace = carbon.NewTraceModel(epochStart, carbonSpec.Step, carbonSpec.Values)
		carbonModel = s.trace
		s.summary.Carbon = carbonSpec.Name
	}
	s.scheduler, err = compute.NewScheduler(schedulerConfig, carbonModel, s, m)
	if err != nil {
		return nil, err
	}
	if err := s.setupClusters(); err != nil {
		return nil, err
	}
	if err := s.bootstrapWorkload(); err != nil {
		return nil, err
	}
	s.bootstrapCarbonTrace()
	return s, nil
}

func (s *Simulator) Now() time.Time {
	return s.time
}

func (s *Simulator) Since(t time.Time) time.Duration {
	return s.Now().Sub(t)
}

// Summary returns the outcome of the simulation. It is complete once Run has returned.
func (s *Simulator) Summary() *Summary {
	return s.summary
}

// Run processes events until every task has completed or failed, or until a termination condition is met.
func (s *Simulator) Run(ctx *schedcontext.Context) error {
	startTime := time.Now()
	s.pushScheduleEvent(s.time)

	var terminationTime time.Time
	if s.options.HardTermination > 0 {
		terminationTime = s.time.Add(s.options.HardTermination)
		ctx.Infof("Will stop simulating at %s", terminationTime)
	} else {
		ctx.Infof("No termination time set, will run until all workloads have completed")
	}

	lastLogTime := time.Now()
	for s.eventLog.Len() > 0 && s.outstanding > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		event := heap.Pop(&s.eventLog).(Event)
		if !terminationTime.IsZero() && event.time.After(terminationTime) {
			ctx.Infof("Next event at %s is past the termination time %s. Terminating", event.time, terminationTime)
			break
		}
		if err := s.handleSimulatorEvent(ctx, event); err != nil {
			return err
		}
		if time.Since(lastLogTime) >= 5*time.Second {
			ctx.Infof("Simulator time %s", s.time)
			lastLogTime = time.Now()
		}
		if s.pendingSubmits == 0 && len(s.runningByTaskId) == 0 && s.Since(s.idleSince) >= s.options.MaxIdle {
			ctx.Warnf("No task has run since %s and none can be submitted. Terminating", s.idleSince)
			break
		}
	}
	s.summary.Unfinished = s.outstanding
	for _, req := range s.queue.Requests() {
		if !req.IsCancelled() {
			s.summary.Queued++
		}
	}
	ctx.Infof("Simulation stopped at %s after %s: %s", s.time, time.Since(startTime), s.summary)
	return nil
}

func (s *Simulator) setupClusters() error {
	for _, cluster := range s.ClusterSpec.Clusters {
		for i, template := range cluster.HostTemplates {
			capacity := model.Resources{
				Cpu:    template.Cpu,
				Memory: template.Memory,
				Gpu:    template.Gpu,
			}
			for k := 0; k < template.Number; k++ {
				host := model.NewHostView(fmt.Sprintf("%s-%d-%d", cluster.Name, i, k), cluster.Name, capacity)
				host.BecomesAvailable = s.time
				if err := s.hosts.upsert(host); err != nil {
					return err
				}
			}
		}
	}
	hosts, err := s.hosts.all()
	if err != nil {
		return err
	}
	for _, host := range hosts {
		s.scheduler.AddHost(host)
	}
	return nil
}

// bootstrapWorkload creates every task of the workload. Schedulers ordering tasks themselves see every task
// from its submit time on; other schedulers only see a task once all its parents have completed.
func (s *Simulator) bootstrapWorkload() error {
	_, submitAll := s.scheduler.(compute.TaskSelector)
	for _, workflow := range s.WorkloadSpec.Workflows {
		tasksByTemplateId := make(map[string][]*model.ServiceTask, len(workflow.TaskTemplates))
		for _, template := range workflow.TaskTemplates {
			for k := 0; k < template.Number; k++ {
				task := s.taskFromTemplate(workflow, template)
				s.tasksById[task.Id] = task
				tasksByTemplateId[template.Id] = append(tasksByTemplateId[template.Id], task)
			}
		}
		for _, template := range workflow.TaskTemplates {
			var parents []*model.ServiceTask
			for _, dependency := range template.Dependencies {
				parents = append(parents, tasksByTemplateId[dependency]...)
			}
			for _, task := range tasksByTemplateId[template.Id] {
				task.Parents = parents
				for _, parent := range parents {
					s.dependantsById[parent.Id] = append(s.dependantsById[parent.Id], task)
				}
				if submitAll || len(parents) == 0 {
					s.pushSubmitEvent(task, task.SubmittedAt)
				} else {
					s.remainingParents[task.Id] = len(parents)
				}
			}
		}
	}
	s.outstanding = len(s.tasksById)
	return nil
}

func (s *Simulator) taskFromTemplate(workflow *Workflow, template *TaskTemplate) *model.ServiceTask {
	submittedAt := s.time.Add(template.EarliestSubmitTime)
	task := &model.ServiceTask{
		Id:         strings.ToLower(ulid.MustNew(ulid.Timestamp(submittedAt), s.entropy).String()),
		WorkflowId: workflow.Name,
		Demand: model.Resources{
			Cpu:    template.Cpu.DeepCopy(),
			Memory: template.Memory.DeepCopy(),
			Gpu:    template.Gpu.DeepCopy(),
		},
		SubmittedAt: submittedAt,
		Duration:    generateRandomShiftedExponentialDuration(s.rand, template.Runtime),
		Nature:      model.TaskNature{Deferrable: template.Deferrable},
		Cluster:     template.Cluster,
	}
	if template.Deadline > 0 {
		task.Deadline = submittedAt.Add(template.Deadline)
	}
	return task
}

func (s *Simulator) bootstrapCarbonTrace() {
	if s.trace == nil {
		return
	}
	for i, value := range s.trace.Values {
		s.pushEvent(s.trace.Start.Add(time.Duration(i)*s.trace.Step), carbonEvent{value: value})
	}
}

func generateRandomShiftedExponentialDuration(r *rand.Rand, rv ShiftedExponential) time.Duration {
	if rv.TailMean == 0 {
		return rv.Minimum
	}
	return rv.Minimum + time.Duration(r.ExpFloat64()*float64(rv.TailMean))
}

func (s *Simulator) pushEvent(t time.Time, payload any) {
	heap.Push(&s.eventLog, Event{
		time:           t,
		sequenceNumber: s.sequenceNumber,
		payload:        payload,
	})
	s.sequenceNumber++
}

func (s *Simulator) pushSubmitEvent(task *model.ServiceTask, t time.Time) {
	if t.Before(s.time) {
		t = s.time
	}
	s.pushEvent(t, submitEvent{task: task})
	s.pendingSubmits++
}

// pushScheduleEvent adds a scheduling pass at t unless one is already pending at that time.
func (s *Simulator) pushScheduleEvent(t time.Time) {
	if s.pendingSchedules[t] {
		return
	}
	s.pendingSchedules[t] = true
	s.pushEvent(t, scheduleEvent{})
}

func (s *Simulator) handleSimulatorEvent(ctx *schedcontext.Context, event Event) error {
	s.time = event.time
	ctx = schedcontext.WithLogField(ctx, "simulated time", event.time)
	switch e := event.payload.(type) {
	case submitEvent:
		s.handleSubmit(e)
	case finishEvent:
		return s.handleFinish(ctx, e)
	case carbonEvent:
		s.handleCarbonSample(e)
	case scheduleEvent:
		delete(s.pendingSchedules, event.time)
		return s.handleScheduleEvent(ctx)
	default:
		return errors.Errorf("unknown event type %T", e)
	}
	return nil
}

func (s *Simulator) handleSubmit(e submitEvent) {
	s.pendingSubmits--
	task := e.task
	if task.State() != model.TaskStatePending {
		// An ancestor was rejected after the submission was scheduled.
		return
	}
	req := model.NewSchedulingRequest(task, s.time)
	s.queue.Push(req)
	s.requestsByTaskId[task.Id] = req
	s.summary.update(task.WorkflowId, func(ws *WorkflowSummary) { ws.Submitted++ })
	s.pushScheduleEvent(s.time)
}

func (s *Simulator) handleCarbonSample(e carbonEvent) {
	if receiver, ok := s.scheduler.(compute.CarbonReceiver); ok {
		receiver.UpdateCarbonIntensity(e.value)
	}
	if s.queue.Len() > 0 {
		s.pushScheduleEvent(s.time)
	}
}

// handleScheduleEvent asks the scheduler for decisions until it places nothing more.
// Each Success or rejection removes a request from the queue, so the loop terminates.
func (s *Simulator) handleScheduleEvent(ctx *schedcontext.Context) error {
	for {
		result := s.scheduler.Select(ctx, s.queue.Iterator())
		s.summary.Results[result.Type]++
		if result.Type == model.ResultSuccess {
			if err := s.start(ctx, result); err != nil {
				return err
			}
			continue
		}
		if result.Type == model.ResultFailure && result.Request != nil && !s.queue.Contains(result.Request) {
			s.reject(ctx, result.Request)
			continue
		}
		break
	}
	if s.queue.Len() > 0 {
		s.pushScheduleEvent(s.time.Add(s.options.SchedulePeriod))
	}
	return nil
}

func (s *Simulator) start(ctx *schedcontext.Context, result model.SchedulingResult) error {
	task := result.Request.Task
	host, err := s.hosts.get(result.Host.Id)
	if err != nil {
		return err
	}
	if !task.Demand.FitsIn(host.Available) {
		s.summary.Overcommitted++
		ctx.Debugf("task %s overcommits %s", task.Id, host)
	}
	host.Reserve(task.Demand)
	task.SetState(model.TaskStateRunning)
	delete(s.requestsByTaskId, task.Id)

	p := &placement{
		task:   task,
		hostId: host.Id,
		start:  s.time,
		end:    s.time.Add(task.Duration),
	}
	s.runningByTaskId[task.Id] = p
	onHost := s.runningByHostId[host.Id]
	if onHost == nil {
		onHost = make(map[string]*placement)
		s.runningByHostId[host.Id] = onHost
	}
	onHost[task.Id] = p
	s.updateBecomesAvailable(host)
	s.idleSince = time.Time{}

	wait := s.time.Sub(result.Request.SubmitTime)
	s.summary.update(task.WorkflowId, func(ws *WorkflowSummary) { ws.TotalWait += wait })
	s.summary.PlacementsByCluster[host.Cluster]++
	s.pushEvent(p.end, finishEvent{taskId: task.Id})
	ctx.WithFields(logrus.Fields{
		"task": task.Id,
		"host": host.Id,
		"wait": wait,
	}).Debug("task started")
	return nil
}

func (s *Simulator) handleFinish(ctx *schedcontext.Context, e finishEvent) error {
	p, ok := s.runningByTaskId[e.taskId]
	if !ok {
		return errors.Errorf("finish event for task %s, which is not running", e.taskId)
	}
	host, err := s.hosts.get(p.hostId)
	if err != nil {
		return err
	}
	task := p.task
	delete(s.runningByTaskId, task.Id)
	delete(s.runningByHostId[host.Id], task.Id)
	host.Release(task.Demand)
	task.SetState(model.TaskStateCompleted)
	s.scheduler.RemoveTask(task, host)
	s.updateBecomesAvailable(host)
	s.outstanding--
	if len(s.runningByTaskId) == 0 {
		s.idleSince = s.time
	}

	exposure := s.carbonExposure(p.start, p.end, task.Demand.Cpu.AsApproximateFloat64())
	missed := task.HasDeadline() && s.time.After(task.Deadline)
	makespan := s.time.Sub(epochStart)
	s.summary.update(task.WorkflowId, func(ws *WorkflowSummary) {
		ws.Completed++
		ws.CarbonExposure += exposure
		ws.Makespan = makespan
		if missed {
			ws.DeadlinesMissed++
		}
	})
	ctx.WithField("task", task.Id).Debug("task completed")

	for _, dependant := range s.dependantsById[task.Id] {
		remaining, ok := s.remainingParents[dependant.Id]
		if !ok {
			continue
		}
		remaining--
		s.remainingParents[dependant.Id] = remaining
		if remaining == 0 {
			delete(s.remainingParents, dependant.Id)
			s.pushSubmitEvent(dependant, dependant.SubmittedAt)
		}
	}
	s.pushScheduleEvent(s.time)
	return nil
}

// reject fails a request removed by the scheduler, together with every task depending on it.
func (s *Simulator) reject(ctx *schedcontext.Context, req *model.SchedulingRequest) {
	ctx.WithField("task", req.Task.Id).Info("task rejected by scheduler")
	delete(s.requestsByTaskId, req.Task.Id)
	req.Task.SetState(model.TaskStateError)
	s.outstanding--
	s.summary.update(req.Task.WorkflowId, func(ws *WorkflowSummary) { ws.Rejected++ })

	stack := append([]*model.ServiceTask(nil), s.dependantsById[req.Task.Id]...)
	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if task.State() != model.TaskStatePending {
			continue
		}
		task.SetState(model.TaskStateError)
		s.outstanding--
		delete(s.remainingParents, task.Id)
		if dependantReq, ok := s.requestsByTaskId[task.Id]; ok {
			dependantReq.Cancel()
			delete(s.requestsByTaskId, task.Id)
		}
		s.summary.update(task.WorkflowId, func(ws *WorkflowSummary) { ws.Abandoned++ })
		stack = append(stack, s.dependantsById[task.Id]...)
	}
}

// updateBecomesAvailable sets the instant at which host next frees capacity: the earliest end of the tasks
// running on it, or now if it runs none.
func (s *Simulator) updateBecomesAvailable(host *model.HostView) {
	next := s.time
	first := true
	for _, p := range s.runningByHostId[host.Id] {
		if first || p.end.Before(next) {
			next = p.end
			first = false
		}
	}
	host.BecomesAvailable = next
}

// carbonExposure integrates the carbon trace over [start, end) and scales it by cores.
// Instants past the end of the trace take its last sample.
func (s *Simulator) carbonExposure(start, end time.Time, cores float64) float64 {
	if s.trace == nil || len(s.trace.Values) == 0 {
		return 0
	}
	last := s.trace.Values[len(s.trace.Values)-1]
	traceEnd := s.trace.End()
	total := 0.0
	for t := start; t.Before(end); {
		var value float64
		next := end
		switch {
		case !t.Before(traceEnd):
			value = last
		case t.Before(s.trace.Start):
			value = s.trace.Values[0]
			next = s.trace.Start
		default:
			i := t.Sub(s.trace.Start) / s.trace.Step
			value = s.trace.Values[i]
			next = s.trace.Start.Add((i + 1) * s.trace.Step)
		}
		if next.After(end) {
			next = end
		}
		total += value * next.Sub(t).Hours()
		t = next
	}
	return total * cores
}
