package joboperator

import (
	"context"
	"fmt"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// Launcher は DefaultJobOperator がジョブの起動と停止に使う依存です。
// joblauncher.SimpleJobLauncher がこれを満たします。
type Launcher interface {
	Launch(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)
	Restart(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)
	GetCancelFunc(executionID string) (context.CancelFunc, bool)
}

// DefaultJobOperator は JobOperator インターフェースのデフォルト実装です。
type DefaultJobOperator struct {
	jobRepository job.JobRepository
	launcher      Launcher
}

var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator は新しい DefaultJobOperator のインスタンスを作成します。
func NewDefaultJobOperator(jobRepository job.JobRepository, launcher Launcher) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		launcher:      launcher,
	}
}

// Start はジョブを起動します。
func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	logger.Infof("JobOperator: Job '%s' を起動します。", jobName)
	return o.launcher.Launch(ctx, jobName, params)
}

// Restart は指定された JobExecution を再開します。
// 再開は同じ JobInstance の新しい JobExecution として実行されます。
func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*core.JobExecution, error) {
	logger.Infof("JobOperator: JobExecution (ID: %s) を再開します。", executionID)

	prev, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("再起動処理エラー: JobExecution (ID: %s) のロードに失敗しました", executionID), err, false, false)
	}
	if !prev.Status.IsRestartable() {
		return nil, exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) は再起動可能な状態ではありません (現在の状態: %s)", executionID, prev.Status)
	}

	instance, err := o.jobRepository.FindJobInstanceByID(ctx, prev.JobInstanceID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("再起動処理エラー: JobInstance (ID: %s) のロードに失敗しました", prev.JobInstanceID), err, false, false)
	}
	return o.launcher.Restart(ctx, instance.JobName, instance.Parameters)
}

// Stop は指定された JobExecution を停止します。
// このプロセスで実行中であれば Context をキャンセルし、そうでなければ永続化された状態を STOPPED にします。
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: JobExecution (ID: %s) を停止します。", executionID)

	if cancel, ok := o.launcher.GetCancelFunc(executionID); ok {
		cancel()
		return nil
	}

	je, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("JobExecution (ID: %s) のロードに失敗しました", executionID), err, false, false)
	}
	if je.Status.IsFinished() {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) は既に終了しています (現在の状態: %s)", executionID, je.Status)
	}
	je.MarkAsStopped()
	if err := o.jobRepository.UpdateJobExecution(ctx, je); err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("JobExecution (ID: %s) の停止状態の保存に失敗しました", executionID), err, false, false)
	}
	return nil
}

// Abandon は指定された JobExecution を放棄します。
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: JobExecution (ID: %s) を放棄します。", executionID)

	je, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("JobExecution (ID: %s) のロードに失敗しました", executionID), err, false, false)
	}
	if !je.Status.IsRestartable() {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) は放棄できる状態ではありません (現在の状態: %s)", executionID, je.Status)
	}
	je.MarkAsAbandoned()
	if err := o.jobRepository.UpdateJobExecution(ctx, je); err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("JobExecution (ID: %s) の放棄状態の保存に失敗しました", executionID), err, false, false)
	}
	return nil
}

func (o *DefaultJobOperator) GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error) {
	je, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("JobExecution (ID: %s) の取得に失敗しました", executionID), err, false, false)
	}
	return je, nil
}

func (o *DefaultJobOperator) GetJobExecutions(ctx context.Context, instanceID string) ([]*core.JobExecution, error) {
	instance, err := o.GetJobInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	executions, err := o.jobRepository.FindJobExecutionsByJobInstance(ctx, instance)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("JobInstance (ID: %s) の JobExecution 一覧の取得に失敗しました", instanceID), err, false, false)
	}
	return executions, nil
}

func (o *DefaultJobOperator) GetLastJobExecution(ctx context.Context, instanceID string) (*core.JobExecution, error) {
	je, err := o.jobRepository.FindLatestJobExecution(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("JobInstance (ID: %s) の最新の JobExecution の取得に失敗しました", instanceID), err, false, false)
	}
	if je == nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("JobInstance (ID: %s) に JobExecution がありません", instanceID), exception.ErrJobExecutionNotFound, false, false)
	}
	return je, nil
}

func (o *DefaultJobOperator) GetJobInstance(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	instance, err := o.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("JobInstance (ID: %s) の取得に失敗しました", instanceID), err, false, false)
	}
	return instance, nil
}

func (o *DefaultJobOperator) GetJobNames(ctx context.Context) ([]string, error) {
	names, err := o.jobRepository.GetJobNames(ctx)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", "ジョブ名一覧の取得に失敗しました", err, false, false)
	}
	return names, nil
}

func (o *DefaultJobOperator) GetParameters(ctx context.Context, executionID string) (core.JobParameters, error) {
	je, err := o.GetJobExecution(ctx, executionID)
	if err != nil {
		return core.JobParameters{}, err
	}
	return je.Parameters, nil
}
