package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/spf13/cobra"

	"moviebatch/example/movie/app"
	"moviebatch/pkg/batch/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

//go:embed resources/job.yaml
var embeddedJSL []byte

func newRootCommand(exitCode *int) *cobra.Command {
	defaultEnvFile := os.Getenv("ENV_FILE_PATH")
	if defaultEnvFile == "" {
		defaultEnvFile = ".env"
	}

	opts := app.Options{
		EmbeddedConfig: embeddedConfig,
		EmbeddedJSL:    embeddedJSL,
	}

	cmd := &cobra.Command{
		Use:           "moviebatch",
		Short:         "映画データセットを取得してタイトルとジャンルを CSV に書き出すバッチ",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			*exitCode = app.RunApplication(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.EnvFilePath, "env-file", defaultEnvFile, ".env ファイルのパス")
	cmd.Flags().StringVar(&opts.JobName, "job", "", "実行する Job 名 (省略時は batch.job_name)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "ログレベル (DEBUG, INFO, WARN, ERROR)")
	return cmd
}

func main() {
	// シグナルを受けたら Context をキャンセルしてジョブを停止させる
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	if err := newRootCommand(&exitCode).ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		exitCode = 1
	}
	if ctx.Err() != nil {
		logger.Warnf("シグナルを受信したため、ジョブを停止しました。")
	}
	stop()
	logger.Sync()
	os.Exit(exitCode)
}
