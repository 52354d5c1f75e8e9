package simulator

import (
	"math/rand"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func HostTemplateCpu(number int, cpu string) *HostTemplate {
	return &HostTemplate{
		Number: number,
		Cpu:    resource.MustParse(cpu),
		Memory: resource.MustParse("64Gi"),
	}
}

func singleHostCluster(cpu string) *ClusterSpec {
	return &ClusterSpec{
		Name: "single-host",
		Clusters: []*Cluster{
			{Name: "cluster", HostTemplates: []*HostTemplate{HostTemplateCpu(1, cpu)}},
		},
	}
}

func singleWorkflow(templates ...*TaskTemplate) *WorkloadSpec {
	return &WorkloadSpec{
		Name: "workload",
		Workflows: []*Workflow{
			{Name: "workflow", TaskTemplates: templates},
		},
	}
}

// TaskTemplateOneCpu returns number tasks of one core that each run for exactly runtime.
func TaskTemplateOneCpu(id string, number int, runtime time.Duration) *TaskTemplate {
	return &TaskTemplate{
		Id:      id,
		Number:  number,
		Cpu:     resource.MustParse("1"),
		Memory:  resource.MustParse("1Gi"),
		Runtime: ShiftedExponential{Minimum: runtime},
	}
}

func WithDependencies(template *TaskTemplate, dependencies ...string) *TaskTemplate {
	template.Dependencies = append(template.Dependencies, dependencies...)
	return template
}

func WithCpu(template *TaskTemplate, cpu string) *TaskTemplate {
	template.Cpu = resource.MustParse(cpu)
	return template
}

func WithDeadline(template *TaskTemplate, deadline time.Duration) *TaskTemplate {
	template.Deadline = deadline
	return template
}

func withType(c configuration.SchedulerConfig, schedulerType configuration.SchedulerType) configuration.SchedulerConfig {
	c.Type = schedulerType
	c.Name = string(schedulerType)
	return c
}
