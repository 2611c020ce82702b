package listener

import (
	"context"
	"time"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

// LoggingJobListener はジョブの開始と終了をログに出力する JobExecutionListener です。
type LoggingJobListener struct {
	config *config.LoggingConfig
}

var _ core.JobExecutionListener = (*LoggingJobListener)(nil)

func NewLoggingJobListener(cfg *config.LoggingConfig) *LoggingJobListener {
	return &LoggingJobListener{config: cfg}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	logger.Infof("Job '%s' (Execution ID: %s) の実行を開始します。パラメータ: %v",
		jobExecution.JobName, jobExecution.ID, jobExecution.Parameters.Params)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	elapsed := time.Duration(0)
	if !jobExecution.StartTime.IsZero() && !jobExecution.EndTime.IsZero() {
		elapsed = jobExecution.EndTime.Sub(jobExecution.StartTime)
	}
	if jobExecution.Status == core.BatchStatusCompleted {
		logger.Infof("Job '%s' の実行が正常に完了しました。所要時間: %d ms", jobExecution.JobName, elapsed.Milliseconds())
		return
	}
	logger.Errorf("Job '%s' が %s で終了しました。所要時間: %d ms, 失敗数: %d",
		jobExecution.JobName, jobExecution.Status, elapsed.Milliseconds(), len(jobExecution.Failures))
}
