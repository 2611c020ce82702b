package joblauncher

import (
	"context"
	"fmt"
	"sync"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// SimpleJobLauncher は JobLauncher インターフェースのシンプルな実装です。
// JobInstance の解決、JobExecution のライフサイクル管理と永続化を行います。
type SimpleJobLauncher struct {
	jobRepository job.JobRepository
	jobProvider   JobProvider
	// 実行中のジョブのキャンセル関数を保持するマップ
	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher は新しい SimpleJobLauncher のインスタンスを作成します。
func NewSimpleJobLauncher(jobRepository job.JobRepository, jobProvider JobProvider) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository:          jobRepository,
		jobProvider:            jobProvider,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

// RegisterCancelFunc は実行中のジョブのキャンセル関数を登録します。
func (l *SimpleJobLauncher) RegisterCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancelFunc
	logger.Debugf("JobExecution (ID: %s) の CancelFunc を登録しました。", executionID)
}

// UnregisterCancelFunc はキャンセル関数を呼び出してから登録解除します。
func (l *SimpleJobLauncher) UnregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancelFunc, ok := l.activeJobCancellations[executionID]; ok {
		cancelFunc()
		delete(l.activeJobCancellations, executionID)
		logger.Debugf("JobExecution (ID: %s) の CancelFunc を登録解除しました。", executionID)
	}
}

// GetCancelFunc は指定された JobExecution ID のキャンセル関数を取得します。
func (l *SimpleJobLauncher) GetCancelFunc(executionID string) (context.CancelFunc, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancelFunc, ok := l.activeJobCancellations[executionID]
	return cancelFunc, ok
}

// Launch はジョブを起動します。JSL に incrementer がある場合は直前の JobInstance のパラメータから
// 次のパラメータを生成し、params の値で上書きしてから使用します。
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	return l.launch(ctx, jobName, params, true)
}

// Restart は incrementer を適用せずに params の JobInstance を再実行します。
// 直前の実行が FAILED または STOPPED の場合のみ再開できます。
func (l *SimpleJobLauncher) Restart(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	return l.launch(ctx, jobName, params, false)
}

func (l *SimpleJobLauncher) launch(ctx context.Context, jobName string, params core.JobParameters, applyIncrementer bool) (*core.JobExecution, error) {
	logger.Infof("JobLauncher を使用して Job '%s' を起動します。", jobName)

	batchJob, err := l.jobProvider.CreateJob(jobName)
	if err != nil {
		return nil, exception.NewBatchError("job_launcher", fmt.Sprintf("Job '%s' の作成に失敗しました", jobName), err, false, false)
	}
	if err := batchJob.ValidateParameters(params); err != nil {
		return nil, exception.NewBatchError("job_launcher", "JobParameters のバリデーションエラー", err, false, false)
	}

	if applyIncrementer {
		params, err = l.incrementParameters(ctx, jobName, params)
		if err != nil {
			return nil, err
		}
	}

	jobInstance, previous, err := l.resolveInstance(ctx, jobName, params)
	if err != nil {
		return nil, err
	}

	jobExecution := core.NewJobExecution(jobInstance.ID, jobName, params)
	if previous != nil {
		jobExecution.PreviousExecution = previous
		jobExecution.ExecutionContext = previous.ExecutionContext.Copy()
		logger.Infof("JobInstance (ID: %s) の直前の実行 (ID: %s, ステータス: %s) から再開します。", jobInstance.ID, previous.ID, previous.Status)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	jobExecution.CancelFunc = cancel
	l.RegisterCancelFunc(jobExecution.ID, cancel)
	defer l.UnregisterCancelFunc(jobExecution.ID)

	if err := l.jobRepository.SaveJobExecution(jobCtx, jobExecution); err != nil {
		return jobExecution, exception.NewBatchError("job_launcher", "起動処理エラー: JobExecution の初期保存に失敗しました", err, false, false)
	}

	logger.Infof("Job '%s' (Execution ID: %s, Job Instance ID: %s) を実行します。", jobName, jobExecution.ID, jobInstance.ID)
	runErr := batchJob.Run(jobCtx, jobExecution, params)

	// キャンセルされていても最終状態は必ず永続化する
	if updateErr := l.jobRepository.UpdateJobExecution(context.WithoutCancel(jobCtx), jobExecution); updateErr != nil {
		logger.Errorf("JobExecution (ID: %s) の最終状態の更新に失敗しました: %v", jobExecution.ID, updateErr)
		if runErr == nil {
			runErr = exception.NewBatchError("job_launcher", "JobExecution 最終状態の永続化に失敗しました", updateErr, false, false)
		}
	}

	return jobExecution, runErr
}

func (l *SimpleJobLauncher) incrementParameters(ctx context.Context, jobName string, params core.JobParameters) (core.JobParameters, error) {
	inc, err := l.jobProvider.GetJobParametersIncrementer(jobName)
	if err != nil {
		return params, exception.NewBatchError("job_launcher", fmt.Sprintf("Job '%s' の JobParametersIncrementer の取得に失敗しました", jobName), err, false, false)
	}
	if inc == nil {
		return params, nil
	}

	base := core.NewJobParameters()
	latest, err := l.jobRepository.FindLatestJobInstance(ctx, jobName)
	if err != nil {
		return params, exception.NewBatchError("job_launcher", "直前の JobInstance の検索に失敗しました", err, false, false)
	}
	if latest != nil {
		base = latest.Parameters
	}

	next := inc.GetNext(base)
	for k, v := range params.Params {
		next.Put(k, v)
	}
	logger.Infof("JobParametersIncrementer を使用して JobParameters を生成しました: %v", next.Params)
	return next, nil
}

// resolveInstance はパラメータに対応する JobInstance を取得または作成します。
// 既存の JobInstance の直前の実行が再開可能な場合はその実行も返します。
func (l *SimpleJobLauncher) resolveInstance(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, *core.JobExecution, error) {
	jobInstance, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil {
		return nil, nil, exception.NewBatchError("job_launcher", "起動処理エラー: JobInstance の検索に失敗しました", err, false, false)
	}

	if jobInstance == nil {
		jobInstance, err = core.NewJobInstance(jobName, params)
		if err != nil {
			return nil, nil, exception.NewBatchError("job_launcher", "JobInstance の作成に失敗しました", err, false, false)
		}
		if err := l.jobRepository.SaveJobInstance(ctx, jobInstance); err != nil {
			return nil, nil, exception.NewBatchError("job_launcher", "起動処理エラー: 新しい JobInstance の保存に失敗しました", err, false, false)
		}
		logger.Infof("新しい JobInstance (ID: %s, JobName: %s) を作成しました。", jobInstance.ID, jobInstance.JobName)
		return jobInstance, nil, nil
	}

	last, err := l.jobRepository.FindLatestJobExecution(ctx, jobInstance.ID)
	if err != nil {
		return nil, nil, exception.NewBatchError("job_launcher", "直前の JobExecution の検索に失敗しました", err, false, false)
	}
	if last == nil {
		return jobInstance, nil, nil
	}

	switch {
	case last.Status == core.BatchStatusCompleted:
		return nil, nil, exception.NewBatchError("job_launcher",
			fmt.Sprintf("JobInstance (ID: %s) は既に完了しています", jobInstance.ID), exception.ErrJobInstanceAlreadyComplete, false, false)
	case last.Status.IsRestartable():
		return jobInstance, last, nil
	case !last.Status.IsFinished():
		return nil, nil, exception.NewBatchError("job_launcher",
			fmt.Sprintf("JobInstance (ID: %s) の JobExecution (ID: %s) が実行中です", jobInstance.ID, last.ID), exception.ErrJobExecutionAlreadyRunning, false, false)
	default:
		return nil, nil, exception.NewBatchErrorf("job_launcher", "JobInstance (ID: %s) は %s のため再開できません", jobInstance.ID, last.Status)
	}
}
