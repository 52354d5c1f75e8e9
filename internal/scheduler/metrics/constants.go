package metrics

const (

	// common prefix for all metric names
	prefix = "carbonsched_"

	// Prometheus Labels
	schedulerLabel = "scheduler"
	resultLabel    = "result"
	outcomeLabel   = "outcome"

	// Optimiser outcomes
	OptimiserOutcomeOptimal = "optimal"
	OptimiserOutcomeGreedy  = "greedy"
	OptimiserOutcomeCyclic  = "cyclic"
	OptimiserOutcomeEmpty   = "empty"
)
