package saga_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/paygate/pkg/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaga_AllStepsSucceed(t *testing.T) {
	var executed []string

	s := saga.New("checkout").
		AddStep(saga.Step{
			Name:    "create-record",
			Execute: func(ctx context.Context) error { executed = append(executed, "create"); return nil },
		}).
		AddStep(saga.Step{
			Name:    "initialize",
			Execute: func(ctx context.Context) error { executed = append(executed, "init"); return nil },
		})

	failedStep, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, failedStep)
	assert.Equal(t, []string{"create", "init"}, executed)
}

func TestSaga_StepFails_CompensatesCompletedOnly(t *testing.T) {
	var executed []string
	gatewayDown := errors.New("gateway down")

	s := saga.New("checkout").
		AddStep(saga.Step{
			Name:       "create-record",
			Execute:    func(ctx context.Context) error { executed = append(executed, "create"); return nil },
			Compensate: func(ctx context.Context) error { executed = append(executed, "delete"); return nil },
		}).
		AddStep(saga.Step{
			Name:       "initialize",
			Execute:    func(ctx context.Context) error { return gatewayDown },
			Compensate: func(ctx context.Context) error { executed = append(executed, "never"); return nil },
		}).
		AddStep(saga.Step{
			Name:    "notify",
			Execute: func(ctx context.Context) error { executed = append(executed, "notify"); return nil },
		})

	failedStep, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, failedStep)
	assert.ErrorIs(t, err, gatewayDown)
	assert.Contains(t, err.Error(), `step "initialize" failed`)
	assert.Equal(t, []string{"create", "delete"}, executed)
}

func TestSaga_CompensatesInReverse(t *testing.T) {
	var compensated []string
	step := func(name string) saga.Step {
		return saga.Step{
			Name:       name,
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { compensated = append(compensated, name); return nil },
		}
	}

	s := saga.New("checkout").
		AddStep(step("a")).
		AddStep(step("b")).
		AddStep(saga.Step{Name: "c", Execute: func(ctx context.Context) error { return errors.New("boom") }})

	failedStep, err := s.Execute(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, failedStep)
	assert.Equal(t, []string{"b", "a"}, compensated)
}

func TestSaga_CompensationFailureIsReported(t *testing.T) {
	s := saga.New("checkout").
		AddStep(saga.Step{
			Name:       "create-record",
			Execute:    func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return errors.New("db gone") },
		}).
		AddStep(saga.Step{
			Name:    "initialize",
			Execute: func(ctx context.Context) error { return errors.New("gateway down") },
		})

	_, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compensation also failed")
	assert.Contains(t, err.Error(), "db gone")
}

func TestSaga_CompensatesAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compCtxErr error
	compensated := false

	s := saga.New("checkout").
		AddStep(saga.Step{
			Name:    "create-record",
			Execute: func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				compensated = true
				compCtxErr = ctx.Err()
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "initialize",
			Execute: func(ctx context.Context) error {
				cancel()
				return ctx.Err()
			},
		})

	failedStep, err := s.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, failedStep)
	assert.True(t, compensated)
	assert.NoError(t, compCtxErr)
}

func TestSaga_CancelledBeforeStepSkipsIt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false

	s := saga.New("checkout").AddStep(saga.Step{
		Name:    "create-record",
		Execute: func(ctx context.Context) error { ran = true; return nil },
	})

	failedStep, err := s.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, failedStep)
	assert.False(t, ran)
}
