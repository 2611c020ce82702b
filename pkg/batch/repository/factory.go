package repository

import (
	"context"
	"fmt"

	"moviebatch/pkg/batch/config"
	"moviebatch/pkg/batch/database"
	"moviebatch/pkg/batch/database/connector"
	"moviebatch/pkg/batch/repository/job"
	"moviebatch/pkg/batch/repository/memory"
	sqlrepo "moviebatch/pkg/batch/repository/sql"
	"moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// NewJobRepository は設定に基づいて JobRepository のインスタンスを作成します。
// database.type が空または "memory" の場合はインメモリリポジトリを返します。
// それ以外はデータベースに接続し、スキーマのマイグレーションを適用してから SQL リポジトリを返します。
func NewJobRepository(ctx context.Context, cfg config.Config) (job.JobRepository, error) {
	const module = "repository_factory"

	if cfg.Database.IsMemory() {
		logger.Debugf("インメモリ JobRepository を使用します。")
		return memory.NewInMemoryJobRepository(), nil
	}

	logger.Debugf("JobRepository の生成を開始します (Type: %s).", cfg.Database.Type)
	if err := database.RunMigrations(cfg.Database); err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobRepository スキーマのマイグレーションに失敗しました (Type: %s)", cfg.Database.Type), err, false, false)
	}

	dbConn, err := connector.NewDBConnectionFromConfig(ctx, cfg.Database)
	if err != nil {
		logger.Errorf("JobRepository 用のデータベース接続確立に失敗しました (Type: %s): %v", cfg.Database.Type, err)
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobRepository 用のデータベース接続確立に失敗しました (Type: %s)", cfg.Database.Type), err, false, false)
	}

	logger.Debugf("SQLJobRepository を生成しました (Type: %s).", cfg.Database.Type)
	return sqlrepo.NewSQLJobRepository(dbConn), nil
}
