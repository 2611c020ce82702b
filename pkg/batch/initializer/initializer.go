package initializer

import (
	"context"
	"errors"
	"fmt"

	config "moviebatch/pkg/batch/config"
	factory "moviebatch/pkg/batch/job/factory"
	joblauncher "moviebatch/pkg/batch/job/joblauncher"
	joboperator "moviebatch/pkg/batch/job/joboperator"
	repository "moviebatch/pkg/batch/repository"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// BatchInitializer はバッチアプリケーションの初期化処理を担当します。
type BatchInitializer struct {
	Config             *config.Config
	JSLDefinitionBytes [][]byte
	// LogLevel が空でない場合、設定ファイルのログレベルより優先されます。
	LogLevel string

	JobRepository job.JobRepository
	JobFactory    *factory.JobFactory
	JobLauncher   *joblauncher.SimpleJobLauncher
	JobOperator   joboperator.JobOperator
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
// cfg.EmbeddedConfig に埋め込みの application.yaml を渡します。
func NewBatchInitializer(cfg *config.Config, jslDefinitions ...[]byte) *BatchInitializer {
	return &BatchInitializer{
		Config:             cfg,
		JSLDefinitionBytes: jslDefinitions,
	}
}

// Initialize は設定のロード、JobRepository の生成、JSL のロードを行い、
// JobLauncher と JobOperator を組み立てます。
func (bi *BatchInitializer) Initialize(ctx context.Context) (joboperator.JobOperator, *factory.JobFactory, error) {
	logger.Debugf("BatchInitializer.Initialize が呼び出されました。")

	cfg, err := config.NewBytesConfigLoader(bi.Config.EmbeddedConfig).Load()
	if err != nil {
		return nil, nil, exception.NewBatchError("initializer", "設定のロードに失敗しました", err, false, false)
	}
	bi.Config = cfg

	level := bi.Config.System.Logging.Level
	if bi.LogLevel != "" {
		level = bi.LogLevel
		bi.Config.System.Logging.Level = level
	}
	logger.SetLogLevel(level)
	logger.Debugf("ロギングレベルを '%s' に設定しました。", level)

	jobRepository, err := repository.NewJobRepository(ctx, *bi.Config)
	if err != nil {
		return nil, nil, exception.NewBatchError("initializer", "Job Repository の生成に失敗しました", err, false, false)
	}
	bi.JobRepository = jobRepository
	logger.Debugf("Job Repository (type: %s) を生成しました。", bi.Config.Database.Type)

	jobFactory := factory.NewJobFactory(bi.Config, bi.JobRepository)
	for _, def := range bi.JSLDefinitionBytes {
		if err := jobFactory.LoadJSL(def); err != nil {
			return nil, nil, exception.NewBatchError("initializer", "JSL 定義のロードに失敗しました", err, false, false)
		}
	}
	bi.JobFactory = jobFactory

	bi.JobLauncher = joblauncher.NewSimpleJobLauncher(bi.JobRepository, jobFactory)
	bi.JobOperator = joboperator.NewDefaultJobOperator(bi.JobRepository, bi.JobLauncher)
	logger.Debugf("JobLauncher と JobOperator を生成しました。")

	return bi.JobOperator, bi.JobFactory, nil
}

// Close は BatchInitializer が保持するリソースを解放します。
func (bi *BatchInitializer) Close() error {
	var errs []error
	if bi.JobRepository != nil {
		if closeErr := bi.JobRepository.Close(); closeErr != nil {
			logger.Errorf("Job Repository のクローズに失敗しました: %v", closeErr)
			errs = append(errs, fmt.Errorf("Job Repository クローズエラー: %w", closeErr))
		}
	}
	return errors.Join(errs...)
}
