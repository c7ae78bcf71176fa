package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step represents a single step in a saga with an execute and compensate function.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga orchestrates a series of steps with automatic compensation on failure.
type Saga struct {
	name  string
	steps []Step
}

// New creates a new saga with the given name.
func New(name string) *Saga {
	return &Saga{name: name}
}

// AddStep adds a step to the saga.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs all saga steps sequentially. If a step fails, completed steps
// are compensated in reverse order. Compensation runs even when ctx has been
// cancelled. Returns the index of the failed step and the error, or -1 and
// nil on success.
func (s *Saga) Execute(ctx context.Context) (failedStep int, err error) {
	completed := make([]int, 0, len(s.steps))

	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return i, s.fail(ctx, step.Name, err, completed)
		}
		if err := step.Execute(ctx); err != nil {
			return i, s.fail(ctx, step.Name, err, completed)
		}
		completed = append(completed, i)
	}

	return -1, nil
}

func (s *Saga) fail(ctx context.Context, name string, err error, completed []int) error {
	if compErr := s.compensate(context.WithoutCancel(ctx), completed); compErr != nil {
		return fmt.Errorf("saga %s: step %q failed (%w), compensation also failed: %v", s.name, name, err, compErr)
	}
	return fmt.Errorf("saga %s: step %q failed: %w", s.name, name, err)
}

func (s *Saga) compensate(ctx context.Context, completedIndexes []int) error {
	var errs []error
	for i := len(completedIndexes) - 1; i >= 0; i-- {
		step := s.steps[completedIndexes[i]]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
