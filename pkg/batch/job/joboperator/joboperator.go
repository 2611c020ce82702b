package joboperator

import (
	"context"

	core "moviebatch/pkg/batch/job/core"
)

// JobOperator はバッチ実行の管理操作を行うためのインターフェースです。
type JobOperator interface {
	// Start は新しいパラメータでジョブを起動します。
	Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)

	// Restart は FAILED または STOPPED の JobExecution を同じ JobInstance で再開します。
	Restart(ctx context.Context, executionID string) (*core.JobExecution, error)

	// Stop は実行中の JobExecution を停止します。
	Stop(ctx context.Context, executionID string) error

	// Abandon は終了済みの JobExecution を放棄し、再開できないようにします。
	Abandon(ctx context.Context, executionID string) error

	// GetJobExecution は指定された ID の JobExecution を取得します。
	GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error)

	// GetJobExecutions は指定された JobInstance に関連する全ての JobExecution を取得します。
	GetJobExecutions(ctx context.Context, instanceID string) ([]*core.JobExecution, error)

	// GetLastJobExecution は指定された JobInstance の最新の JobExecution を取得します。
	GetLastJobExecution(ctx context.Context, instanceID string) (*core.JobExecution, error)

	// GetJobInstance は指定された ID の JobInstance を取得します。
	GetJobInstance(ctx context.Context, instanceID string) (*core.JobInstance, error)

	// GetJobNames は実行履歴のある全てのジョブ名を取得します。
	GetJobNames(ctx context.Context) ([]string, error)

	// GetParameters は指定された JobExecution の JobParameters を取得します。
	GetParameters(ctx context.Context, executionID string) (core.JobParameters, error)
}
