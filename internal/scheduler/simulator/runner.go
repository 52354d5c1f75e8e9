package simulator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"github.com/renstrom/shortuuid"
	"github.com/sirupsen/logrus"

	"github.com/carbonsched/carbonsched/internal/common/config"
	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
)

// Simulate runs one simulation for every combination of the cluster specs, workload specs, carbon specs and
// scheduler configs matched by the given glob patterns, in parallel. An empty carbon pattern runs every
// combination without a carbon trace. Summaries are returned in a deterministic order.
func Simulate(
	ctx *schedcontext.Context,
	clusterSpecsPattern, workloadSpecsPattern, carbonSpecsPattern, schedulerConfigsPattern string,
	m *metrics.Metrics,
	options Options,
) ([]*Summary, error) {
	clusterSpecs, err := ClusterSpecsFromPattern(clusterSpecsPattern)
	if err != nil {
		return nil, err
	}
	workloadSpecs, err := WorkloadSpecsFromPattern(workloadSpecsPattern)
	if err != nil {
		return nil, err
	}
	carbonSpecs := []*CarbonSpec{nil}
	if carbonSpecsPattern != "" {
		carbonSpecs, err = CarbonSpecsFromPattern(carbonSpecsPattern)
		if err != nil {
			return nil, err
		}
	}
	schedulerConfigs, err := SchedulerConfigsFromPattern(schedulerConfigsPattern)
	if err != nil {
		return nil, err
	}
	if len(clusterSpecs) == 0 || len(workloadSpecs) == 0 || len(carbonSpecs) == 0 || len(schedulerConfigs) == 0 {
		return nil, errors.Errorf(
			"nothing to simulate: found %d cluster specs, %d workload specs, %d carbon specs and %d scheduler configs",
			len(clusterSpecs), len(workloadSpecs), len(carbonSpecs), len(schedulerConfigs),
		)
	}

	var simulators []*Simulator
	for _, clusterSpec := range clusterSpecs {
		for _, workloadSpec := range workloadSpecs {
			for _, carbonSpec := range carbonSpecs {
				for _, schedulerConfig := range schedulerConfigs {
					s, err := NewSimulator(clusterSpec, workloadSpec, carbonSpec, schedulerConfig, m, options)
					if err != nil {
						return nil, err
					}
					s.summary.RunId = uuid.NewString()
					simulators = append(simulators, s)
				}
			}
		}
	}

	g, ctx := schedcontext.ErrGroup(ctx)
	for _, s := range simulators {
		s := s
		runCtx := schedcontext.WithLogFields(ctx, logrus.Fields{
			"run":       s.summary.RunId,
			"cluster":   s.summary.Cluster,
			"workload":  s.summary.Workload,
			"carbon":    s.summary.Carbon,
			"scheduler": s.summary.Scheduler,
		})
		g.Go(func() error {
			return s.Run(runCtx)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	rv := make([]*Summary, len(simulators))
	for i, s := range simulators {
		rv[i] = s.Summary()
	}
	return rv, nil
}

func SchedulerConfigsFromPattern(pattern string) ([]configuration.SchedulerConfig, error) {
	filePaths, err := zglob.Glob(pattern)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := make([]configuration.SchedulerConfig, len(filePaths))
	for i, filePath := range filePaths {
		c, err := configuration.Load(filePath)
		if err != nil {
			return nil, err
		}
		// Without an explicit name, distinguish runs by the file the config came from.
		if c.Name == string(c.Type) {
			c.Name = nameFromFilePath(filePath)
		}
		rv[i] = c
	}
	return rv, nil
}

func ClusterSpecsFromPattern(pattern string) ([]*ClusterSpec, error) {
	filePaths, err := zglob.Glob(pattern)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := make([]*ClusterSpec, len(filePaths))
	for i, filePath := range filePaths {
		if rv[i], err = ClusterSpecFromFilePath(filePath); err != nil {
			return nil, err
		}
	}
	return rv, nil
}

func WorkloadSpecsFromPattern(pattern string) ([]*WorkloadSpec, error) {
	filePaths, err := zglob.Glob(pattern)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := make([]*WorkloadSpec, len(filePaths))
	for i, filePath := range filePaths {
		if rv[i], err = WorkloadSpecFromFilePath(filePath); err != nil {
			return nil, err
		}
	}
	return rv, nil
}

func CarbonSpecsFromPattern(pattern string) ([]*CarbonSpec, error) {
	filePaths, err := zglob.Glob(pattern)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := make([]*CarbonSpec, len(filePaths))
	for i, filePath := range filePaths {
		if rv[i], err = CarbonSpecFromFilePath(filePath); err != nil {
			return nil, err
		}
	}
	return rv, nil
}

func ClusterSpecFromFilePath(filePath string) (*ClusterSpec, error) {
	rv := &ClusterSpec{}
	if err := config.LoadFile(filePath, rv); err != nil {
		return nil, errors.WithMessage(err, "failed to load ClusterSpec")
	}
	if rv.Name == "" {
		rv.Name = nameFromFilePath(filePath)
	}
	initialiseClusterSpec(rv)
	return rv, nil
}

func WorkloadSpecFromFilePath(filePath string) (*WorkloadSpec, error) {
	rv := &WorkloadSpec{}
	if err := config.LoadFile(filePath, rv); err != nil {
		return nil, errors.WithMessage(err, "failed to load WorkloadSpec")
	}
	if rv.Name == "" {
		rv.Name = nameFromFilePath(filePath)
	}
	initialiseWorkloadSpec(rv)
	return rv, nil
}

func CarbonSpecFromFilePath(filePath string) (*CarbonSpec, error) {
	rv := &CarbonSpec{}
	if err := config.LoadFile(filePath, rv); err != nil {
		return nil, errors.WithMessage(err, "failed to load CarbonSpec")
	}
	if rv.Name == "" {
		rv.Name = nameFromFilePath(filePath)
	}
	return rv, nil
}

// nameFromFilePath returns the name of the file at filePath without its extension.
func nameFromFilePath(filePath string) string {
	fileName := filepath.Base(filePath)
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

func initialiseClusterSpec(clusterSpec *ClusterSpec) {
	for i, cluster := range clusterSpec.Clusters {
		if cluster.Name == "" {
			cluster.Name = fmt.Sprintf("%s-%d", clusterSpec.Name, i)
		}
	}
}

func initialiseWorkloadSpec(workloadSpec *WorkloadSpec) {
	for i, workflow := range workloadSpec.Workflows {
		if workflow.Name == "" {
			workflow.Name = fmt.Sprintf("%s-%d", workloadSpec.Name, i)
		}
		for _, template := range workflow.TaskTemplates {
			if template.Id == "" {
				template.Id = shortuuid.New()
			}
		}
	}
}
