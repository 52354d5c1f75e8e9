package simulator

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// Summary is the outcome of one simulation.
type Summary struct {
	RunId     string
	Cluster   string
	Workload  string
	Carbon    string
	Scheduler string

	Total      WorkflowSummary
	ByWorkflow map[string]WorkflowSummary
	// Number of scheduling decisions of each type.
	Results map[model.ResultType]int
	// Number of tasks started on the hosts of each cluster.
	PlacementsByCluster map[string]int
	// Tasks neither finished nor rejected when the simulation stopped.
	Unfinished int
	// Of the unfinished tasks, those still waiting in the scheduling queue.
	Queued int
	// Tasks started on a host whose available resources did not cover their demand.
	Overcommitted int
}

// WorkflowSummary aggregates the tasks of one workflow, or of all workflows.
type WorkflowSummary struct {
	Submitted int
	Completed int
	// Tasks removed from the queue by the scheduler.
	Rejected int
	// Tasks that can never run because one of their ancestors was rejected.
	Abandoned       int
	DeadlinesMissed int
	// Sum over started tasks of the time between submission and start.
	TotalWait time.Duration
	// Time since the start of the simulation at which the last task completed.
	Makespan time.Duration
	// Carbon intensity integrated over the runtime of each completed task, weighted by its cores.
	CarbonExposure float64
}

func newSummary() *Summary {
	return &Summary{
		ByWorkflow:          make(map[string]WorkflowSummary),
		Results:             make(map[model.ResultType]int),
		PlacementsByCluster: make(map[string]int),
	}
}

// MeanWait is the mean time between submission and start of the tasks that started.
func (s WorkflowSummary) MeanWait() time.Duration {
	started := s.Completed
	if started == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(started)
}

func (s WorkflowSummary) String() string {
	return fmt.Sprintf(
		"{Submitted: %d, Completed: %d, Rejected: %d, Abandoned: %d, DeadlinesMissed: %d, MeanWait: %s, Makespan: %s, CarbonExposure: %.2f}",
		s.Submitted, s.Completed, s.Rejected, s.Abandoned, s.DeadlinesMissed, s.MeanWait(), s.Makespan, s.CarbonExposure,
	)
}

func (s *Summary) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	sb.WriteString(fmt.Sprintf(
		"Run: %s, Cluster: %s, Workload: %s, Carbon: %s, Scheduler: %s, Total: %s, Unfinished: %d, Queued: %d, Overcommitted: %d, Workflows: {",
		s.RunId, s.Cluster, s.Workload, s.Carbon, s.Scheduler, s.Total, s.Unfinished, s.Queued, s.Overcommitted,
	))
	names := maps.Keys(s.ByWorkflow)
	slices.Sort(names)
	for i, name := range names {
		sb.WriteString(fmt.Sprintf("%s: %s", name, s.ByWorkflow[name]))
		if i != len(names)-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("}}")
	return sb.String()
}

func (s *Summary) update(workflow string, f func(*WorkflowSummary)) {
	f(&s.Total)
	entry := s.ByWorkflow[workflow]
	f(&entry)
	s.ByWorkflow[workflow] = entry
}
