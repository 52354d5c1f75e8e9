package simulator

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/carbonsched/carbonsched/internal/common/config"
)

// ClusterSpec describes the hosts available to a simulation.
type ClusterSpec struct {
	Name     string
	Clusters []*Cluster `validate:"required,dive"`
}

type Cluster struct {
	Name          string
	HostTemplates []*HostTemplate `validate:"required,dive"`
}

// HostTemplate describes Number identical hosts.
type HostTemplate struct {
	Number int `validate:"gte=1"`
	Cpu    resource.Quantity
	Memory resource.Quantity
	Gpu    resource.Quantity
}

// WorkloadSpec describes the tasks submitted during a simulation.
type WorkloadSpec struct {
	Name string
	// Seed of the random source used to draw task runtimes.
	RandomSeed int64
	Workflows  []*Workflow `validate:"required,dive"`
}

// Workflow is a group of task templates. Dependencies may only refer to templates of the same workflow.
type Workflow struct {
	Name          string `validate:"required"`
	TaskTemplates []*TaskTemplate `validate:"required,dive"`
}

// TaskTemplate describes Number identical tasks.
type TaskTemplate struct {
	Id     string
	Number int `validate:"gte=1"`
	Cpu    resource.Quantity
	Memory resource.Quantity
	Gpu    resource.Quantity
	// Runtime distribution of each task.
	Runtime ShiftedExponential
	// Offset from the start of the simulation at which the tasks are submitted.
	EarliestSubmitTime time.Duration `validate:"gte=0"`
	// Offset from submission by which the tasks should complete. Zero means no deadline.
	Deadline   time.Duration `validate:"gte=0"`
	Deferrable bool
	// If set, the tasks may only run on hosts of this cluster.
	Cluster string
	// Ids of the templates whose tasks must all finish before these tasks may start.
	Dependencies []string
	// If set, the template is instantiated NumTimes times, Period apart.
	Repeat *RepeatDetails
}

// ShiftedExponential is a random duration: Minimum plus an exponential tail with mean TailMean.
// A zero TailMean gives the constant Minimum.
type ShiftedExponential struct {
	Minimum  time.Duration `validate:"gte=0"`
	TailMean time.Duration `validate:"gte=0"`
}

type RepeatDetails struct {
	NumTimes int           `validate:"gte=1"`
	Period   time.Duration `validate:"gt=0"`
}

// CarbonSpec is a regularly sampled carbon-intensity trace starting at the beginning of the simulation.
type CarbonSpec struct {
	Name   string
	Step   time.Duration `validate:"gt=0"`
	Values []float64     `validate:"required,min=1"`
}

func validateClusterSpec(clusterSpec *ClusterSpec) error {
	if err := config.Validate(clusterSpec); err != nil {
		config.LogValidationErrors(err)
		return errors.WithMessagef(err, "invalid cluster spec %s", clusterSpec.Name)
	}
	var result *multierror.Error
	names := make(map[string]bool, len(clusterSpec.Clusters))
	for _, cluster := range clusterSpec.Clusters {
		if cluster.Name == "" {
			result = multierror.Append(result, errors.New("cluster name cannot be empty"))
			continue
		}
		if names[cluster.Name] {
			result = multierror.Append(result, errors.Errorf("duplicate cluster name: %v", cluster.Name))
		}
		names[cluster.Name] = true
	}
	return result.ErrorOrNil()
}

// validateWorkloadSpec reports every problem found in workloadSpec, not only the first.
func validateWorkloadSpec(workloadSpec *WorkloadSpec) error {
	if err := config.Validate(workloadSpec); err != nil {
		config.LogValidationErrors(err)
		return errors.WithMessagef(err, "invalid workload spec %s", workloadSpec.Name)
	}
	var result *multierror.Error
	workflowNames := make(map[string]bool, len(workloadSpec.Workflows))
	for _, workflow := range workloadSpec.Workflows {
		if workflowNames[workflow.Name] {
			result = multierror.Append(result, errors.Errorf("duplicate workflow name: %v", workflow.Name))
		}
		workflowNames[workflow.Name] = true

		templates := make(map[string]*TaskTemplate, len(workflow.TaskTemplates))
		for _, template := range workflow.TaskTemplates {
			if template.Id == "" {
				result = multierror.Append(result, errors.Errorf("workflow %s has a task template without id", workflow.Name))
				continue
			}
			if _, ok := templates[template.Id]; ok {
				result = multierror.Append(result, errors.Errorf(
					"duplicate task template id %s in workflow %s", template.Id, workflow.Name,
				))
			}
			templates[template.Id] = template
		}
		for _, template := range workflow.TaskTemplates {
			for _, dependency := range template.Dependencies {
				parent, ok := templates[dependency]
				if !ok {
					result = multierror.Append(result, errors.Errorf(
						"task template %s depends on task template %s, which does not exist in workflow %s",
						template.Id, dependency, workflow.Name,
					))
					continue
				}
				if parent.Repeat != nil {
					result = multierror.Append(result, errors.Errorf(
						"task template %s depends on repeated task template %s", template.Id, dependency,
					))
				}
			}
		}
	}
	return result.ErrorOrNil()
}

func validateCarbonSpec(carbonSpec *CarbonSpec) error {
	if err := config.Validate(carbonSpec); err != nil {
		config.LogValidationErrors(err)
		return errors.WithMessagef(err, "invalid carbon spec %s", carbonSpec.Name)
	}
	return nil
}

// expandRepeatingTemplates returns a copy of w in which every repeated template is replaced by one
// template per repetition, each submitted Period after the previous one.
func expandRepeatingTemplates(w *WorkloadSpec) *WorkloadSpec {
	rv := &WorkloadSpec{
		Name:       w.Name,
		RandomSeed: w.RandomSeed,
		Workflows:  make([]*Workflow, len(w.Workflows)),
	}
	for i, workflow := range w.Workflows {
		var templates []*TaskTemplate
		for _, template := range workflow.TaskTemplates {
			if template.Repeat == nil {
				templates = append(templates, copyTemplate(template))
				continue
			}
			for k := 0; k < template.Repeat.NumTimes; k++ {
				t := copyTemplate(template)
				t.Repeat = nil
				t.Id = fmt.Sprintf("%s-repeat-%d", template.Id, k)
				t.EarliestSubmitTime = template.EarliestSubmitTime + time.Duration(k)*template.Repeat.Period
				templates = append(templates, t)
			}
		}
		rv.Workflows[i] = &Workflow{Name: workflow.Name, TaskTemplates: templates}
	}
	return rv
}

func copyTemplate(template *TaskTemplate) *TaskTemplate {
	t := *template
	t.Cpu = template.Cpu.DeepCopy()
	t.Memory = template.Memory.DeepCopy()
	t.Gpu = template.Gpu.DeepCopy()
	t.Dependencies = slices.Clone(template.Dependencies)
	return &t
}
