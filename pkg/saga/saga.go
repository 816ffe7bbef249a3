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

// StepError is returned by Execute when a step fails.
type StepError struct {
	Saga  string
	Step  string
	Index int
	Err   error
	// CompensationErr joins every compensation failure, if any.
	CompensationErr error
}

func (e *StepError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("saga %s: step %q failed (%v), compensation also failed: %v", e.Saga, e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("saga %s: step %q failed: %v", e.Saga, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
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

// Execute runs all saga steps sequentially. If a step fails, every previously
// completed step is compensated in reverse order and a *StepError is returned.
//
// Compensation runs on a context detached from ctx's cancellation so that a
// torn-down caller still undoes its side effects.
func (s *Saga) Execute(ctx context.Context) error {
	completed := make([]int, 0, len(s.steps))

	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, i, step, err, completed)
		}
		if err := step.Execute(ctx); err != nil {
			return s.fail(ctx, i, step, err, completed)
		}
		completed = append(completed, i)
	}

	return nil
}

func (s *Saga) fail(ctx context.Context, i int, step Step, err error, completed []int) error {
	return &StepError{
		Saga:            s.name,
		Step:            step.Name,
		Index:           i,
		Err:             err,
		CompensationErr: s.compensate(context.WithoutCancel(ctx), completed),
	}
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
