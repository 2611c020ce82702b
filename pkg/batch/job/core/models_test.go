package core_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	core "moviebatch/pkg/batch/job/core"
)

func TestJobStatus(t *testing.T) {
	assert.True(t, core.BatchStatusCompleted.IsFinished())
	assert.False(t, core.BatchStatusStarted.IsFinished())

	assert.True(t, core.BatchStatusFailed.IsRestartable())
	assert.True(t, core.BatchStatusStopped.IsRestartable())
	assert.False(t, core.BatchStatusAbandoned.IsRestartable())
	assert.False(t, core.BatchStatusCompleted.IsRestartable())

	assert.Equal(t, core.ExitStatusStopped, core.BatchStatusStopped.ToExitStatus())
	assert.Equal(t, core.ExitStatusUnknown, core.BatchStatusStarting.ToExitStatus())
}

func TestJobExecution_Lifecycle(t *testing.T) {
	je := core.NewJobExecution("instance", "movieJob", core.NewJobParameters())
	assert.Equal(t, core.BatchStatusStarting, je.Status)

	je.MarkAsStarted()
	assert.Equal(t, core.BatchStatusStarted, je.Status)
	assert.False(t, je.StartTime.IsZero())

	je.MarkAsFailed(errors.New("boom"))
	assert.Equal(t, core.BatchStatusFailed, je.Status)
	assert.Equal(t, core.ExitStatusFailed, je.ExitStatus)
	assert.Equal(t, 1, je.ExitCode)
	assert.Len(t, je.Failures, 1)

	je.MarkAsCompleted()
	assert.Equal(t, 0, je.ExitCode)
}

func TestJobExecution_ConcurrentStepExecutions(t *testing.T) {
	je := core.NewJobExecution("instance", "movieJob", core.NewJobParameters())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			je.AddStepExecution(core.NewStepExecution("split-step", je))
			je.AddFailureException(errors.New("x"))
		}()
	}
	wg.Wait()

	assert.Len(t, je.StepExecutions, 10)
	assert.Len(t, je.Failures, 10)

	last := core.NewStepExecution("movieStep", je)
	je.AddStepExecution(last)
	got, ok := je.GetStepExecution("movieStep")
	assert.True(t, ok)
	assert.Same(t, last, got)
	assert.Equal(t, je.ID, got.JobExecutionID)

	_, ok = je.GetStepExecution("missing")
	assert.False(t, ok)
}
