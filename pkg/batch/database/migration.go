package database

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"     // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres"  // PostgreSQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/redshift"  // Redshift ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/snowflake" // Snowflake ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"    // SQLite (modernc) ドライバを登録
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"moviebatch/pkg/batch/config"
	"moviebatch/pkg/batch/util/exception"
	"moviebatch/pkg/batch/util/logger"
)

// バッチフレームワークのマイグレーション履歴は 'batch_schema_migrations' テーブルに記録します。
const migrationsTable = "batch_schema_migrations"

//go:embed migrations
var migrationFS embed.FS

// migrationDir はデータベースタイプに対応するマイグレーションディレクトリを返します。
func migrationDir(dbType string) (string, error) {
	switch strings.ToLower(dbType) {
	case "postgres", "redshift", "sqlite", "snowflake":
		return "migrations/common", nil
	case "mysql":
		return "migrations/mysql", nil
	default:
		return "", exception.NewBatchErrorf("migration", "サポートされていないデータベースタイプ: %s", dbType)
	}
}

// withMigrationsTable は URL に x-migrations-table を付与します。
func withMigrationsTable(databaseURL string) string {
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	return databaseURL + sep + "x-migrations-table=" + migrationsTable
}

// RunMigrations は埋め込まれた JobRepository スキーマをデータベースに適用します。
// マイグレーションは JobRepository とは別の接続で実行され、完了後に閉じられます。
func RunMigrations(cfg config.DatabaseConfig) error {
	dir, err := migrationDir(cfg.Type)
	if err != nil {
		return err
	}
	logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, マイグレーションパス: %s", cfg.Type, dir)

	src, err := iofs.New(migrationFS, dir)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションソースの読み込みに失敗しました", err, false, false)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, withMigrationsTable(cfg.MigrationURL()))
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err, false, false)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warnf("マイグレーションのクローズに失敗しました: source=%v, database=%v", srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil
		}
		return exception.NewBatchError("migration", "マイグレーションの適用に失敗しました", err, false, false)
	}
	logger.Infof("マイグレーションが正常に完了しました。")
	return nil
}
