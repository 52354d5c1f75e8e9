package model

import "fmt"

type ResultType int

const (
	// The request was placed on a host.
	ResultSuccess ResultType = iota
	// The request cannot currently be placed.
	ResultFailure
	// There was nothing to schedule.
	ResultEmpty
)

func (t ResultType) String() string {
	switch t {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultEmpty:
		return "empty"
	default:
		return fmt.Sprintf("ResultType(%d)", int(t))
	}
}

// SchedulingResult is the outcome of one scheduling attempt.
type SchedulingResult struct {
	Type    ResultType
	Host    *HostView
	Request *SchedulingRequest
}

func Success(host *HostView, req *SchedulingRequest) SchedulingResult {
	return SchedulingResult{Type: ResultSuccess, Host: host, Request: req}
}

func Failure(req *SchedulingRequest) SchedulingResult {
	return SchedulingResult{Type: ResultFailure, Request: req}
}

func Empty() SchedulingResult {
	return SchedulingResult{Type: ResultEmpty}
}
