package runner_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/job/runner"
	"moviebatch/pkg/batch/repository/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStep は指定された終了ステータスとエラーを返す core.Step です。
type fakeStep struct {
	name  string
	exit  core.ExitStatus
	err   error
	calls atomic.Int32
	onRun func(ctx context.Context, se *core.StepExecution)
}

func (s *fakeStep) StepName() string { return s.name }
func (s *fakeStep) ID() string       { return s.name }

func (s *fakeStep) Execute(ctx context.Context, je *core.JobExecution, se *core.StepExecution) error {
	s.calls.Add(1)
	if s.onRun != nil {
		s.onRun(ctx, se)
	}
	if s.err != nil {
		se.MarkAsFailed(s.err)
		return s.err
	}
	se.MarkAsCompleted()
	if s.exit != "" {
		se.ExitStatus = s.exit
	}
	return nil
}

type recordingJobListener struct {
	before, after int
	lastStatus    core.JobStatus
}

func (l *recordingJobListener) BeforeJob(ctx context.Context, je *core.JobExecution) { l.before++ }
func (l *recordingJobListener) AfterJob(ctx context.Context, je *core.JobExecution) {
	l.after++
	l.lastStatus = je.Status
}

func newFlow(t *testing.T, start string, elements ...core.FlowElement) *core.FlowDefinition {
	t.Helper()
	flow := core.NewFlowDefinition(start)
	for _, e := range elements {
		require.NoError(t, flow.AddElement(e.ID(), e))
	}
	return flow
}

func runJob(ctx context.Context, t *testing.T, flow *core.FlowDefinition, prev *core.JobExecution) (*core.JobExecution, *recordingJobListener, error) {
	t.Helper()
	repo := memory.NewInMemoryJobRepository()
	ji, err := core.NewJobInstance("movieJob", core.NewJobParameters())
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(context.Background(), ji))
	je := core.NewJobExecution(ji.ID, ji.JobName, ji.Parameters)
	je.PreviousExecution = prev
	require.NoError(t, repo.SaveJobExecution(context.Background(), je))

	listener := &recordingJobListener{}
	job := runner.NewFlowJob("movieJob", "movieJob", flow, repo, []core.JobExecutionListener{listener})
	require.NoError(t, job.ValidateParameters(core.NewJobParameters()))
	runErr := job.Run(ctx, je, je.Parameters)
	return je, listener, runErr
}

func TestFlowJob_SequentialSteps(t *testing.T) {
	movieStep := &fakeStep{name: "movieStep"}
	listStep := &fakeStep{name: "listStep"}
	flow := newFlow(t, "movieStep", movieStep, listStep)
	flow.AddTransitionRule("movieStep", core.Transition{On: "COMPLETED", To: "listStep"})
	flow.AddTransitionRule("listStep", core.Transition{On: "COMPLETED", End: true})

	je, listener, err := runJob(context.Background(), t, flow, nil)
	require.NoError(t, err)

	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.Equal(t, 0, je.ExitCode)
	assert.EqualValues(t, 1, movieStep.calls.Load())
	assert.EqualValues(t, 1, listStep.calls.Load())
	assert.Len(t, je.StepExecutions, 2)
	assert.Equal(t, "listStep", je.CurrentStepName)
	assert.Equal(t, 1, listener.before)
	assert.Equal(t, 1, listener.after)
	assert.Equal(t, core.BatchStatusCompleted, listener.lastStatus)
}

func TestFlowJob_StepFailureStopsFlow(t *testing.T) {
	boom := errors.New("source unavailable")
	movieStep := &fakeStep{name: "movieStep", err: boom}
	listStep := &fakeStep{name: "listStep"}
	flow := newFlow(t, "movieStep", movieStep, listStep)
	flow.AddTransitionRule("movieStep", core.Transition{On: "COMPLETED", To: "listStep"})
	flow.AddTransitionRule("movieStep", core.Transition{On: "*", Fail: true})

	je, listener, err := runJob(context.Background(), t, flow, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, core.BatchStatusFailed, je.Status)
	assert.Equal(t, 1, je.ExitCode)
	assert.Zero(t, listStep.calls.Load())
	assert.Equal(t, core.BatchStatusFailed, listener.lastStatus)
}

func TestFlowJob_TransitionOutcomes(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name       string
		step       *fakeStep
		rule       *core.Transition
		wantStatus core.JobStatus
		wantErr    bool
	}{
		{"no rules completes", &fakeStep{name: "s"}, nil, core.BatchStatusCompleted, false},
		{"no rules with error fails", &fakeStep{name: "s", err: boom}, nil, core.BatchStatusFailed, true},
		{"unmatched status fails", &fakeStep{name: "s", exit: "NOOP"}, &core.Transition{On: "COMPLETED", End: true}, core.BatchStatusFailed, true},
		{"stop transition", &fakeStep{name: "s"}, &core.Transition{On: "COMPLETED", Stop: true}, core.BatchStatusStopped, false},
		{"fail transition", &fakeStep{name: "s"}, &core.Transition{On: "COMPLETED", Fail: true}, core.BatchStatusFailed, true},
		{"end on failure keeps failure", &fakeStep{name: "s", err: boom}, &core.Transition{On: "FAILED", End: true}, core.BatchStatusFailed, true},
		{"rule without target", &fakeStep{name: "s"}, &core.Transition{On: "COMPLETED"}, core.BatchStatusFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := newFlow(t, "s", tt.step)
			if tt.rule != nil {
				flow.AddTransitionRule("s", *tt.rule)
			}
			je, _, err := runJob(context.Background(), t, flow, nil)
			assert.Equal(t, tt.wantStatus, je.Status)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFlowJob_ErrorTransitionContinues(t *testing.T) {
	boom := errors.New("boom")
	failing := &fakeStep{name: "failing", err: boom}
	recovery := &fakeStep{name: "recovery"}
	flow := newFlow(t, "failing", failing, recovery)
	flow.AddTransitionRule("failing", core.Transition{On: "FAILED", To: "recovery"})

	je, _, err := runJob(context.Background(), t, flow, nil)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.EqualValues(t, 1, recovery.calls.Load())
	require.Len(t, je.Failures, 1)
	assert.ErrorIs(t, je.Failures[0], boom)
}

func TestFlowJob_Decision(t *testing.T) {
	decision := core.NewConditionalDecision("check")
	decision.SetProperties(map[string]string{"conditionKey": "ready", "expectedValue": "true"})
	setup := &fakeStep{name: "setup", onRun: func(ctx context.Context, se *core.StepExecution) {
		se.JobExecution.ExecutionContext.Put("ready", true)
	}}
	done := &fakeStep{name: "done"}
	flow := newFlow(t, "setup", setup, decision, done)
	flow.AddTransitionRule("setup", core.Transition{On: "COMPLETED", To: "check"})
	flow.AddTransitionRule("check", core.Transition{On: "COMPLETED", To: "done"})
	flow.AddTransitionRule("check", core.Transition{On: "FAILED", Fail: true})

	je, _, err := runJob(context.Background(), t, flow, nil)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.EqualValues(t, 1, done.calls.Load())
}

func TestFlowJob_Split(t *testing.T) {
	a := &fakeStep{name: "a"}
	b := &fakeStep{name: "b"}
	split := core.NewConcreteSplit("parallel", []core.Step{a, b})
	flow := newFlow(t, "parallel", split)

	je, _, err := runJob(context.Background(), t, flow, nil)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.Len(t, je.StepExecutions, 2)
	assert.Empty(t, je.CurrentStepName)

	boom := errors.New("boom")
	failingSplit := core.NewConcreteSplit("parallel", []core.Step{&fakeStep{name: "ok"}, &fakeStep{name: "ng", err: boom}})
	je, _, err = runJob(context.Background(), t, newFlow(t, "parallel", failingSplit), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, core.BatchStatusFailed, je.Status)
}

func TestFlowJob_CancelledContextStops(t *testing.T) {
	s := &fakeStep{name: "s"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	je, listener, err := runJob(ctx, t, newFlow(t, "s", s), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.BatchStatusStopped, je.Status)
	assert.Zero(t, s.calls.Load())
	assert.Equal(t, 1, listener.after)
}

func TestFlowJob_RestartSkipsCompletedSteps(t *testing.T) {
	prev := core.NewJobExecution("instance", "movieJob", core.NewJobParameters())
	completed := core.NewStepExecution("movieStep", prev)
	completed.MarkAsCompleted()
	prev.AddStepExecution(completed)
	failed := core.NewStepExecution("listStep", prev)
	failed.ExecutionContext.Put("checkpoint", 3)
	failed.MarkAsFailed(errors.New("boom"))
	prev.AddStepExecution(failed)
	prev.MarkAsFailed(nil)

	var seeded int
	movieStep := &fakeStep{name: "movieStep"}
	listStep := &fakeStep{name: "listStep", onRun: func(ctx context.Context, se *core.StepExecution) {
		seeded, _ = se.ExecutionContext.GetInt("checkpoint")
	}}
	flow := newFlow(t, "movieStep", movieStep, listStep)
	flow.AddTransitionRule("movieStep", core.Transition{On: "COMPLETED", To: "listStep"})

	je, _, err := runJob(context.Background(), t, flow, prev)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.Zero(t, movieStep.calls.Load())
	assert.EqualValues(t, 1, listStep.calls.Load())
	assert.Equal(t, 3, seeded)
}

func TestFlowJob_ValidateParameters(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	assert.Error(t, runner.NewFlowJob("j", "j", nil, repo, nil).ValidateParameters(core.NewJobParameters()))
	assert.Error(t, runner.NewFlowJob("j", "j", core.NewFlowDefinition("missing"), repo, nil).ValidateParameters(core.NewJobParameters()))

	job := runner.NewFlowJob("id", "name", core.NewFlowDefinition("x"), repo, nil)
	assert.Equal(t, "id", job.JobID())
	assert.Equal(t, "name", job.JobName())
	assert.NotNil(t, job.GetFlow())
}
