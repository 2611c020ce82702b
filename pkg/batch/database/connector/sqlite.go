package connector

import (
	"database/sql"

	"moviebatch/pkg/batch/config"

	_ "modernc.org/sqlite" // SQLite ドライバ (cgo 不要)
)

// sqliteConnector はローカルの SQLite ファイルに接続する DBConnector の実装です。
type sqliteConnector struct{}

func (c *sqliteConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := openWithPool("sqlite", "SQLite", cfg)
	if err != nil {
		return nil, err
	}
	// SQLite は書き込みが直列化されるため、接続を1本に制限する
	db.SetMaxOpenConns(1)
	return db, nil
}

func init() {
	RegisterConnector("sqlite", &sqliteConnector{})
}
