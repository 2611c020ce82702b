package step_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/memory"
	"moviebatch/pkg/batch/step"
)

type stubTasklet struct {
	status   core.ExitStatus
	err      error
	closeErr error
	closed   bool
}

func (t *stubTasklet) Execute(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
	se.ExecutionContext.Put("stub.executed", true)
	return t.status, t.err
}

func (t *stubTasklet) Close(ctx context.Context) error {
	t.closed = true
	return t.closeErr
}

func TestTaskletStep_Execute(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name       string
		tasklet    *stubTasklet
		wantErr    error
		wantStatus core.JobStatus
		wantExit   core.ExitStatus
	}{
		{"completed", &stubTasklet{status: core.ExitStatusCompleted}, nil, core.BatchStatusCompleted, core.ExitStatusCompleted},
		{"empty status is completed", &stubTasklet{}, nil, core.BatchStatusCompleted, core.ExitStatusCompleted},
		{"custom exit status", &stubTasklet{status: "EMPTY"}, nil, core.BatchStatusCompleted, core.ExitStatus("EMPTY")},
		{"error", &stubTasklet{err: boom}, boom, core.BatchStatusFailed, core.ExitStatusFailed},
		{"close error", &stubTasklet{status: core.ExitStatusCompleted, closeErr: boom}, boom, core.BatchStatusFailed, core.ExitStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewInMemoryJobRepository()
			je, se := newExecutions(t, repo, "taskletStep")
			var after *core.StepExecution
			listener := core.StepExecutionListenerFuncs{After: func(ctx context.Context, se *core.StepExecution) { after = se }}
			ts := step.NewTaskletStep("taskletStep", tt.tasklet, repo, []core.StepExecutionListener{listener},
				&core.ExecutionContextPromotion{Keys: []string{"stub.executed"}})

			err := ts.Execute(context.Background(), je, se)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				v, ok := je.ExecutionContext.GetNested("stub.executed")
				assert.True(t, ok)
				assert.Equal(t, true, v)
			}
			assert.Equal(t, tt.wantStatus, se.Status)
			assert.Equal(t, tt.wantExit, se.ExitStatus)
			assert.True(t, tt.tasklet.closed)
			assert.Same(t, se, after)
			assert.Equal(t, "taskletStep", ts.StepName())
			assert.Equal(t, "taskletStep", ts.ID())
		})
	}
}

func TestTaskletStep_FailedExitStatusIsError(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "taskletStep")
	ts := step.NewTaskletStep("taskletStep", &stubTasklet{status: core.ExitStatusFailed}, repo, nil, nil)

	assert.Error(t, ts.Execute(context.Background(), je, se))
	assert.Equal(t, core.BatchStatusFailed, se.Status)
}

func TestTaskletStep_CancelledContextStops(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "taskletStep")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ts := step.NewTaskletStep("taskletStep", &stubTasklet{err: context.Canceled}, repo, nil, nil)

	assert.ErrorIs(t, ts.Execute(ctx, je, se), context.Canceled)
	assert.Equal(t, core.BatchStatusStopped, se.Status)
}
