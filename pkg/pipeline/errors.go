package pipeline

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/pipedef/pkg/pipeline/model"
)

// Construction errors. Every failing builder call returns an error matching one of them
// with errors.Is; the builder never corrects a description on its own.
var (
	ErrDuplicateID     = errors.New("duplicate id")
	ErrInvalidParams   = errors.New("invalid params")
	ErrUnknownStep     = errors.New("unknown step")
	ErrCycle           = errors.New("dependency cycle")
	ErrEmptyPipeline   = errors.New("pipeline has no steps")
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidPolicy   = model.ErrInvalidPolicy
)

// InvalidParamsError is returned when a step's params do not satisfy its kind.
type InvalidParamsError struct {
	StepID   string
	Kind     model.Kind
	Problems []string
	cause    error
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("step %q: invalid %s params: %s", e.StepID, e.Kind, strings.Join(e.Problems, "; "))
}

// Is matches ErrInvalidParams.
func (e *InvalidParamsError) Is(target error) bool {
	return target == ErrInvalidParams //nolint:errorlint
}

func (e *InvalidParamsError) Unwrap() error {
	return e.cause
}

// CycleError is returned when a dependency would close a cycle.
type CycleError struct {
	Upstream   string
	Downstream string
	// Path is the existing path from Downstream back to Upstream.
	Path []string
}

func (e *CycleError) Error() string {
	cycle := make([]string, 0, len(e.Path)+1)
	cycle = append(cycle, e.Path...)
	cycle = append(cycle, e.Downstream)

	return fmt.Sprintf("dependency %s -> %s closes the cycle %s", e.Upstream, e.Downstream, strings.Join(cycle, " -> "))
}

// Is matches ErrCycle.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle //nolint:errorlint
}
