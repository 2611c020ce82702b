package app

import (
	"context"
	"errors"

	godotenv "github.com/joho/godotenv"

	config "moviebatch/pkg/batch/config"
	initializer "moviebatch/pkg/batch/initializer"
	core "moviebatch/pkg/batch/job/core"
	factory "moviebatch/pkg/batch/job/factory"
	incrementer "moviebatch/pkg/batch/job/incrementer"
	joblistener "moviebatch/pkg/batch/job/listener"
	"moviebatch/pkg/batch/repository/job"
	"moviebatch/pkg/batch/step"
	steplistener "moviebatch/pkg/batch/step/listener"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"

	moviejob "moviebatch/example/movie/job"
	movielistener "moviebatch/example/movie/step/listener"
	movieprocessor "moviebatch/example/movie/step/processor"
	moviereader "moviebatch/example/movie/step/reader"
	movietasklet "moviebatch/example/movie/step/tasklet"
	moviewriter "moviebatch/example/movie/step/writer"
)

// Options はアプリケーションの起動オプションです。
type Options struct {
	// EnvFilePath は起動時にロードする .env ファイルのパスです。空の場合はロードしません。
	EnvFilePath string
	// JobName が空の場合は設定ファイルの batch.job_name を使用します。
	JobName string
	// LogLevel が空でない場合は設定ファイルのログレベルより優先されます。
	LogLevel string

	EmbeddedConfig []byte
	EmbeddedJSL    []byte
}

// registerApplicationComponents はアプリケーション固有のコンポーネントとジョブを JobFactory に登録します。
func registerApplicationComponents(jobFactory *factory.JobFactory) {
	jobFactory.RegisterComponentBuilder("movieJsonItemReader", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		r, err := moviereader.NewMovieJSONItemReader(cfg, repo, properties)
		if err != nil {
			return nil, err
		}
		return step.NewAnyReader(r), nil
	})
	jobFactory.RegisterComponentBuilder("movieGenreItemProcessor", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		p, err := movieprocessor.NewMovieGenreItemProcessor(cfg, repo, properties)
		if err != nil {
			return nil, err
		}
		return step.NewAnyProcessor(p), nil
	})
	jobFactory.RegisterComponentBuilder("movieGenreWriter", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		w, err := moviewriter.NewMovieGenreWriter(cfg, repo, properties)
		if err != nil {
			return nil, err
		}
		return step.NewAnyWriter(w), nil
	})
	jobFactory.RegisterComponentBuilder("listDirectoryTasklet", func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
		return movietasklet.NewListDirectoryTasklet(cfg, repo, properties)
	})

	// Step-level listeners
	jobFactory.RegisterStepExecutionListenerBuilder("movieStepListener", func(cfg *config.Config) (core.StepExecutionListener, error) {
		return movielistener.NewMovieStepListener(), nil
	})
	jobFactory.RegisterChunkListenerBuilder("loggingChunkListener", func(cfg *config.Config) (core.ChunkListener, error) {
		return steplistener.NewLoggingChunkListener(), nil
	})

	// Item-level listeners
	jobFactory.RegisterItemReadListenerBuilder("loggingItemReadListener", func(cfg *config.Config) (core.ItemReadListener, error) {
		return steplistener.NewLoggingItemReadListener(), nil
	})
	jobFactory.RegisterItemProcessListenerBuilder("loggingItemProcessListener", func(cfg *config.Config) (core.ItemProcessListener, error) {
		return steplistener.NewLoggingItemProcessListener(), nil
	})
	jobFactory.RegisterItemWriteListenerBuilder("loggingItemWriteListener", func(cfg *config.Config) (core.ItemWriteListener, error) {
		return steplistener.NewLoggingItemWriteListener(), nil
	})
	jobFactory.RegisterSkipListenerBuilder("loggingSkipListener", func(cfg *config.Config) (core.SkipListener, error) {
		return steplistener.NewLoggingSkipListener(), nil
	})
	jobFactory.RegisterRetryItemListenerBuilder("loggingRetryItemListener", func(cfg *config.Config) (core.RetryItemListener, error) {
		return steplistener.NewLoggingRetryItemListener(), nil
	})

	jobFactory.RegisterJobListenerBuilder("loggingJobListener", func(cfg *config.Config) (core.JobExecutionListener, error) {
		return joblistener.NewLoggingJobListener(&cfg.System.Logging), nil
	})

	jobFactory.RegisterJobParametersIncrementerBuilder("runIdIncrementer", func(cfg *config.Config, properties map[string]string) (core.JobParametersIncrementer, error) {
		return incrementer.NewRunIDIncrementer(properties["name"]), nil
	})
	jobFactory.RegisterJobParametersIncrementerBuilder("timestampIncrementer", func(cfg *config.Config, properties map[string]string) (core.JobParametersIncrementer, error) {
		return incrementer.NewTimestampIncrementer(properties["name"]), nil
	})

	jobFactory.RegisterJobBuilder(moviejob.JobName, func(
		jobRepository job.JobRepository,
		cfg *config.Config,
		listeners []core.JobExecutionListener,
		flow *core.FlowDefinition,
	) (core.Job, error) {
		return moviejob.NewMovieJob(jobRepository, cfg, listeners, flow), nil
	})

	logger.Debugf("全てのアプリケーションコンポーネントビルダーを登録しました。")
}

// setupApplication は .env のロードと初期化処理を行い、コンポーネントを登録した BatchInitializer を返します。
func setupApplication(ctx context.Context, opts Options) (*initializer.BatchInitializer, error) {
	if opts.EnvFilePath != "" {
		if err := godotenv.Load(opts.EnvFilePath); err != nil {
			logger.Warnf(".env ファイル '%s' のロードに失敗しました (環境変数のみを使用します): %v", opts.EnvFilePath, err)
		} else {
			logger.Infof(".env ファイル '%s' をロードしました。", opts.EnvFilePath)
		}
	}

	batchInitializer := initializer.NewBatchInitializer(&config.Config{EmbeddedConfig: opts.EmbeddedConfig}, opts.EmbeddedJSL)
	batchInitializer.LogLevel = opts.LogLevel

	if _, _, err := batchInitializer.Initialize(ctx); err != nil {
		// 途中まで生成されたリソースを解放する
		_ = batchInitializer.Close()
		return nil, exception.NewBatchError("app", "バッチアプリケーションの初期化に失敗しました", err, false, false)
	}
	registerApplicationComponents(batchInitializer.JobFactory)
	logger.Debugf("バッチアプリケーションの初期化が完了しました。")
	return batchInitializer, nil
}

// RunApplication はジョブを1回実行し、プロセスの終了コードを返します。
// ジョブが COMPLETED で終わった場合は 0、それ以外は 1 です。
func RunApplication(ctx context.Context, opts Options) int {
	batchInitializer, err := setupApplication(ctx, opts)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	defer func() {
		if closeErr := batchInitializer.Close(); closeErr != nil {
			logger.Errorf("バッチアプリケーションのリソースクローズ中にエラーが発生しました: %v", closeErr)
		}
	}()

	jobName := opts.JobName
	if jobName == "" {
		jobName = batchInitializer.Config.Batch.JobName
	}
	if jobName == "" {
		logger.Errorf("実行するジョブ名が指定されていません。")
		return 1
	}
	logger.Infof("実行する Job: '%s'", jobName)

	jobExecution, launchErr := batchInitializer.JobOperator.Start(ctx, jobName, core.NewJobParameters())
	return handleApplicationError(launchErr, jobExecution, jobName)
}

// handleApplicationError はジョブの結果をログに出力し、終了コードを返します。
func handleApplicationError(err error, jobExecution *core.JobExecution, jobName string) int {
	hasError := false

	if err != nil {
		hasError = true
		if jobExecution != nil {
			logger.Errorf("Job '%s' (Execution ID: %s) の実行中にエラーが発生しました: %v", jobName, jobExecution.ID, err)
		} else {
			logger.Errorf("Job '%s' の起動処理中にエラーが発生しました: %v", jobName, err)
		}

		var be *exception.BatchError
		if errors.As(err, &be) && be.StackTrace != "" {
			logger.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
		}
		switch {
		case errors.Is(err, exception.ErrSourceUnavailable):
			logger.Errorf("入力元のデータセットに到達できません。")
		case errors.Is(err, exception.ErrMalformedInput):
			logger.Errorf("入力データの形式が不正です。")
		case errors.Is(err, exception.ErrDestinationUnwritable):
			logger.Errorf("出力先に書き込めません。")
		}
	}

	if jobExecution != nil && jobExecution.Status != core.BatchStatusCompleted {
		hasError = true
		logger.Errorf("Job '%s' (Execution ID: %s) は %s で終了しました。", jobExecution.JobName, jobExecution.ID, jobExecution.Status)
		for i, f := range jobExecution.Failures {
			logger.Errorf("  - 失敗 %d: %v", i+1, f)
		}
	}

	if hasError {
		return 1
	}
	return 0
}
