// Package schederrors contains generic errors returned by the scheduler family. Callers recover them with errors.As
// to tell configuration mistakes apart from modelling errors in the submitted workload.
package schederrors

import (
	"fmt"
	"strings"
)

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "subsetSize"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrCyclicDependency is returned when the dependency edges of a batch of tasks do not form a DAG.
// TaskIds holds the tasks that could not be ordered, i.e., every task on or downstream of a cycle.
type ErrCyclicDependency struct {
	TaskIds []string
}

func (err *ErrCyclicDependency) Error() string {
	return fmt.Sprintf("dependency cycle detected among tasks [%s]", strings.Join(err.TaskIds, ", "))
}

// ErrNotFound is returned whenever some resource, e.g., a host in the simulator's registry, does not exist.
type ErrNotFound struct {
	Type  string
	Value string
}

func (err *ErrNotFound) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	}
	return fmt.Sprintf("resource %q does not exist", err.Value)
}
