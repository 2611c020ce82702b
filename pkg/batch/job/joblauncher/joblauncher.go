package joblauncher

import (
	"context"

	core "moviebatch/pkg/batch/job/core"
)

// JobLauncher は Job を JobParameters とともに起動するためのインターフェースです。
type JobLauncher interface {
	// Launch は指定された Job を JobParameters とともに起動し、実行を終えた JobExecution を返します。
	// ジョブが FAILED で終わった場合は JobExecution と原因のエラーの両方を返します。
	Launch(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)
}

// JobProvider は JobLauncher がジョブを組み立てるために使う依存です。
// factory.JobFactory がこれを満たします。
type JobProvider interface {
	CreateJob(jobName string) (core.Job, error)
	GetJobParametersIncrementer(jobName string) (core.JobParametersIncrementer, error)
}
