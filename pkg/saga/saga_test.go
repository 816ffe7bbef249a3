package saga_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/checkout/pkg/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaga_AllStepsSucceed(t *testing.T) {
	var executed []string

	s := saga.New("open-window").
		AddStep(saga.Step{
			Name:    "record-url",
			Execute: func(ctx context.Context) error { executed = append(executed, "record"); return nil },
		}).
		AddStep(saga.Step{
			Name:    "register",
			Execute: func(ctx context.Context) error { executed = append(executed, "register"); return nil },
		})

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"record", "register"}, executed)
}

func TestSaga_SecondStepFails_CompensatesFirst(t *testing.T) {
	var executed []string
	blocked := errors.New("popup blocked")

	s := saga.New("open-window").
		AddStep(saga.Step{
			Name:       "record-url",
			Execute:    func(ctx context.Context) error { executed = append(executed, "record"); return nil },
			Compensate: func(ctx context.Context) error { executed = append(executed, "unrecord"); return nil },
		}).
		AddStep(saga.Step{
			Name:    "await-open",
			Execute: func(ctx context.Context) error { return blocked },
			Compensate: func(ctx context.Context) error {
				executed = append(executed, "not-called")
				return nil
			},
		}).
		AddStep(saga.Step{
			Name:    "never",
			Execute: func(ctx context.Context) error { executed = append(executed, "never"); return nil },
		})

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, blocked)

	var stepErr *saga.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, "await-open", stepErr.Step)
	assert.NoError(t, stepErr.CompensationErr)
	assert.Equal(t, []string{"record", "unrecord"}, executed)
}

// recorder builds steps that log their compensations into a shared slice.
type recorder struct{ log []string }

func (r *recorder) step(name string, execErr, compErr error, compensable bool) saga.Step {
	st := saga.Step{
		Name:    name,
		Execute: func(context.Context) error { return execErr },
	}
	if compensable {
		st.Compensate = func(context.Context) error {
			r.log = append(r.log, "undo "+name)
			return compErr
		}
	}
	return st
}

func TestSaga_CompensationOrderAndErrors(t *testing.T) {
	failed := errors.New("register window: redis timeout")

	tests := []struct {
		name        string
		steps       func(r *recorder) []saga.Step
		wantUndo    []string
		wantCompErr []string
	}{
		{
			name: "reverse order",
			steps: func(r *recorder) []saga.Step {
				return []saga.Step{
					r.step("record-url", nil, nil, true),
					r.step("reserve-lock", nil, nil, true),
					r.step("register-window", failed, nil, true),
				}
			},
			wantUndo: []string{"undo reserve-lock", "undo record-url"},
		},
		{
			name: "every compensation error kept",
			steps: func(r *recorder) []saga.Step {
				return []saga.Step{
					r.step("record-url", nil, errors.New("cart version conflict"), true),
					r.step("reserve-lock", nil, errors.New("lock lost"), true),
					r.step("register-window", failed, nil, false),
				}
			},
			wantUndo:    []string{"undo reserve-lock", "undo record-url"},
			wantCompErr: []string{"cart version conflict", "lock lost"},
		},
		{
			name: "steps without compensation skipped",
			steps: func(r *recorder) []saga.Step {
				return []saga.Step{
					r.step("build-url", nil, nil, false),
					r.step("register-window", failed, nil, false),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			s := saga.New("open-window")
			for _, st := range tt.steps(r) {
				s.AddStep(st)
			}

			err := s.Execute(context.Background())
			require.ErrorIs(t, err, failed)
			assert.Equal(t, tt.wantUndo, r.log)

			var stepErr *saga.StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, "register-window", stepErr.Step)
			if len(tt.wantCompErr) == 0 {
				assert.NoError(t, stepErr.CompensationErr)
			}
			for _, msg := range tt.wantCompErr {
				assert.ErrorContains(t, stepErr.CompensationErr, msg)
			}
		})
	}
}

func TestSaga_NoSteps(t *testing.T) {
	assert.NoError(t, saga.New("empty").Execute(context.Background()))
}

func TestSaga_CompensatesWithLiveContextAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compCtxErr error

	s := saga.New("teardown").
		AddStep(saga.Step{
			Name:       "record-url",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { compCtxErr = ctx.Err(); return nil },
		}).
		AddStep(saga.Step{
			Name: "await-open",
			Execute: func(ctx context.Context) error {
				cancel()
				return ctx.Err()
			},
		})

	err := s.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, compCtxErr)
}

func TestSaga_StopsWhenContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := saga.New("cancelled").
		AddStep(saga.Step{Name: "step1", Execute: func(ctx context.Context) error { ran = true; return nil }}).
		Execute(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}
