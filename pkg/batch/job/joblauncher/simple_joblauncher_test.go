package joblauncher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/job/incrementer"
	"moviebatch/pkg/batch/job/joblauncher"
	"moviebatch/pkg/batch/repository/memory"
	"moviebatch/pkg/batch/util/exception"
)

type stubJob struct {
	run func(ctx context.Context, je *core.JobExecution) error
}

func (j *stubJob) JobName() string                                    { return "movieJob" }
func (j *stubJob) GetFlow() *core.FlowDefinition                      { return nil }
func (j *stubJob) ValidateParameters(params core.JobParameters) error { return nil }

func (j *stubJob) Run(ctx context.Context, je *core.JobExecution, params core.JobParameters) error {
	je.MarkAsStarted()
	if err := j.run(ctx, je); err != nil {
		je.MarkAsFailed(err)
		return err
	}
	je.MarkAsCompleted()
	return nil
}

type stubProvider struct {
	job       core.Job
	inc       core.JobParametersIncrementer
	createErr error
}

func (p *stubProvider) CreateJob(jobName string) (core.Job, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return p.job, nil
}

func (p *stubProvider) GetJobParametersIncrementer(jobName string) (core.JobParametersIncrementer, error) {
	return p.inc, nil
}

func succeed(ctx context.Context, je *core.JobExecution) error { return nil }

func params(kv ...any) core.JobParameters {
	p := core.NewJobParameters()
	for i := 0; i+1 < len(kv); i += 2 {
		p.Put(kv[i].(string), kv[i+1])
	}
	return p
}

func TestLaunch_NewInstanceCompletes(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInMemoryJobRepository()
	launcher := joblauncher.NewSimpleJobLauncher(repo, &stubProvider{job: &stubJob{run: succeed}})

	je, err := launcher.Launch(ctx, "movieJob", params("date", "2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)

	stored, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, stored.Status)

	_, err = launcher.Launch(ctx, "movieJob", params("date", "2024-01-01"))
	assert.ErrorIs(t, err, exception.ErrJobInstanceAlreadyComplete)

	_, err = launcher.Launch(ctx, "movieJob", params("date", "2024-01-02"))
	assert.NoError(t, err)
	count, err := repo.GetJobInstanceCount(ctx, "movieJob")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLaunch_IncrementerCreatesNewInstanceEachRun(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInMemoryJobRepository()
	provider := &stubProvider{job: &stubJob{run: succeed}, inc: incrementer.NewRunIDIncrementer("")}
	launcher := joblauncher.NewSimpleJobLauncher(repo, provider)

	for want := 1; want <= 3; want++ {
		je, err := launcher.Launch(ctx, "movieJob", core.NewJobParameters())
		require.NoError(t, err)
		runID, ok := je.Parameters.GetInt(incrementer.DefaultRunIDKey)
		require.True(t, ok)
		assert.Equal(t, want, runID)
	}

	// 明示的に渡したパラメータは incrementer の結果より優先される
	je, err := launcher.Launch(ctx, "movieJob", params("run.id", 100))
	require.NoError(t, err)
	runID, _ := je.Parameters.GetInt(incrementer.DefaultRunIDKey)
	assert.Equal(t, 100, runID)
}

func TestRestart_ResumesFailedInstance(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInMemoryJobRepository()
	boom := errors.New("source unavailable")

	attempts := 0
	var seenPrevious *core.JobExecution
	job := &stubJob{run: func(ctx context.Context, je *core.JobExecution) error {
		attempts++
		if attempts == 1 {
			je.ExecutionContext.Put("progress", 5)
			return boom
		}
		seenPrevious = je.PreviousExecution
		return nil
	}}
	provider := &stubProvider{job: job, inc: incrementer.NewRunIDIncrementer("")}
	launcher := joblauncher.NewSimpleJobLauncher(repo, provider)

	first, err := launcher.Launch(ctx, "movieJob", core.NewJobParameters())
	require.ErrorIs(t, err, boom)
	require.NotNil(t, first)
	assert.Equal(t, core.BatchStatusFailed, first.Status)

	second, err := launcher.Restart(ctx, "movieJob", first.Parameters)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, second.Status)
	assert.Equal(t, first.JobInstanceID, second.JobInstanceID)
	assert.NotEqual(t, first.ID, second.ID)
	require.NotNil(t, seenPrevious)
	assert.Equal(t, first.ID, seenPrevious.ID)

	progress, ok := second.ExecutionContext.GetInt("progress")
	assert.True(t, ok)
	assert.Equal(t, 5, progress)

	_, err = launcher.Restart(ctx, "movieJob", first.Parameters)
	assert.ErrorIs(t, err, exception.ErrJobInstanceAlreadyComplete)
}

func TestLaunch_RunningExecutionIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInMemoryJobRepository()
	p := params("date", "2024-01-01")

	ji, err := core.NewJobInstance("movieJob", p)
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(ctx, ji))
	running := core.NewJobExecution(ji.ID, ji.JobName, p)
	running.MarkAsStarted()
	require.NoError(t, repo.SaveJobExecution(ctx, running))

	launcher := joblauncher.NewSimpleJobLauncher(repo, &stubProvider{job: &stubJob{run: succeed}})
	_, err = launcher.Launch(ctx, "movieJob", p)
	assert.ErrorIs(t, err, exception.ErrJobExecutionAlreadyRunning)
}

func TestLaunch_CreateJobError(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	cause := errors.New("unknown job")
	launcher := joblauncher.NewSimpleJobLauncher(repo, &stubProvider{createErr: cause})

	je, err := launcher.Launch(context.Background(), "missing", core.NewJobParameters())
	assert.Nil(t, je)
	assert.ErrorIs(t, err, cause)
}

func TestLaunch_CancelFuncRegisteredWhileRunning(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	var launcher *joblauncher.SimpleJobLauncher
	registered := false
	job := &stubJob{run: func(ctx context.Context, je *core.JobExecution) error {
		_, registered = launcher.GetCancelFunc(je.ID)
		return nil
	}}
	launcher = joblauncher.NewSimpleJobLauncher(repo, &stubProvider{job: job})

	je, err := launcher.Launch(context.Background(), "movieJob", core.NewJobParameters())
	require.NoError(t, err)
	assert.True(t, registered)
	_, ok := launcher.GetCancelFunc(je.ID)
	assert.False(t, ok)
}
