package job

// JobRepository はバッチのメタデータ (JobInstance, JobExecution, StepExecution) を管理します。
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution

	// Close はリポジトリが保持するリソースを解放します。
	Close() error
}
