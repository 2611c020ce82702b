package tasklet

import (
	"context"
	"fmt"
	"os"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"

	movie_config "moviebatch/example/movie/config"
)

// EntryCountKey は列挙したエントリ数を保存する StepExecutionContext のキーです。
const EntryCountKey = "listDirectoryTasklet.entry.count"

// ListDirectoryTasklet はディレクトリ内のエントリ名をログに出力する Tasklet です。
type ListDirectoryTasklet struct {
	directory string
}

var _ core.Tasklet = (*ListDirectoryTasklet)(nil)

// NewListDirectoryTasklet は ComponentBuilder のシグネチャに合わせて設定を受け取ります。
// properties の "directory" が無い場合は出力ファイルのディレクトリを列挙します。
func NewListDirectoryTasklet(cfg *config.Config, repo job.JobRepository, properties map[string]string) (*ListDirectoryTasklet, error) {
	lc := movie_config.NewListDirectoryConfig(cfg, properties)
	return &ListDirectoryTasklet{directory: lc.Directory}, nil
}

// Execute はディレクトリのエントリを名前順にログ出力します。サブディレクトリも含みます。
func (t *ListDirectoryTasklet) Execute(ctx context.Context, stepExecution *core.StepExecution) (core.ExitStatus, error) {
	if err := ctx.Err(); err != nil {
		return core.ExitStatusStopped, err
	}

	entries, err := os.ReadDir(t.directory)
	if err != nil {
		return core.ExitStatusFailed, exception.NewBatchError("list_directory_tasklet", fmt.Sprintf("ディレクトリ '%s' を読み込めません", t.directory), err, false, false)
	}

	logger.Infof("%s directory is available", t.directory)
	for _, e := range entries {
		logger.Infof("%s is available", e.Name())
	}
	stepExecution.ExecutionContext.Put(EntryCountKey, len(entries))
	return core.ExitStatusCompleted, nil
}

func (t *ListDirectoryTasklet) Close(ctx context.Context) error {
	return nil
}
