package step

import (
	"context"
	"fmt"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// TaskletStep は Tasklet インターフェースをラップし、core.Step インターフェースを実装します。
// JSR352のTaskletステップに相当します。
type TaskletStep struct {
	name                      string
	tasklet                   core.Tasklet
	stepListeners             []core.StepExecutionListener
	jobRepository             job.JobRepository
	executionContextPromotion *core.ExecutionContextPromotion
}

var _ core.Step = (*TaskletStep)(nil)

// NewTaskletStep は新しい TaskletStep のインスタンスを作成します。
func NewTaskletStep(
	name string,
	tasklet core.Tasklet,
	jobRepository job.JobRepository,
	stepListeners []core.StepExecutionListener,
	executionContextPromotion *core.ExecutionContextPromotion,
) *TaskletStep {
	return &TaskletStep{
		name:                      name,
		tasklet:                   tasklet,
		jobRepository:             jobRepository,
		stepListeners:             stepListeners,
		executionContextPromotion: executionContextPromotion,
	}
}

func (s *TaskletStep) StepName() string {
	return s.name
}

func (s *TaskletStep) ID() string {
	return s.name
}

// Execute は TaskletStep の処理を実行します。
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	logger.Infof("Taskletステップ '%s' (Execution ID: %s) を開始します。", s.name, stepExecution.ID)

	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}
	stepExecution.MarkAsStarted()
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		logger.Errorf("Taskletステップ '%s': StepExecution の状態更新に失敗しました: %v", s.name, err)
	}

	exitStatus, runErr := s.tasklet.Execute(ctx, stepExecution)
	if cerr := s.tasklet.Close(ctx); cerr != nil {
		logger.Errorf("Taskletステップ '%s': Tasklet のクローズに失敗しました: %v", s.name, cerr)
		if runErr == nil {
			runErr = cerr
		}
	}

	switch {
	case runErr != nil && ctx.Err() != nil:
		stepExecution.MarkAsStopped()
		stepExecution.AddFailureException(runErr)
	case runErr != nil:
		logger.Errorf("Taskletステップ '%s' の実行中にエラーが発生しました: %v", s.name, runErr)
		stepExecution.MarkAsFailed(runErr)
	case exitStatus == core.ExitStatusCompleted || exitStatus == "":
		stepExecution.MarkAsCompleted()
	case exitStatus == core.ExitStatusFailed:
		runErr = fmt.Errorf("Tasklet が終了ステータス %s を返しました", exitStatus)
		stepExecution.MarkAsFailed(runErr)
	default:
		// 独自の ExitStatus はフローの遷移に使用する
		stepExecution.MarkAsCompleted()
		stepExecution.ExitStatus = exitStatus
	}

	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	if runErr == nil {
		s.executionContextPromotion.Promote(stepExecution.ExecutionContext, jobExecution.ExecutionContext)
	}

	if err := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); err != nil {
		logger.Errorf("Taskletステップ '%s': 最終 StepExecution の更新に失敗しました: %v", s.name, err)
	}

	if runErr != nil {
		return exception.NewBatchError(s.name, "Tasklet 実行エラー", runErr, false, false)
	}
	logger.Infof("Taskletステップ '%s' が完了しました。ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return nil
}
