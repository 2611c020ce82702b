package connector

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL ドライバ

	"moviebatch/pkg/batch/config"
)

// postgresConnector はPostgreSQLデータベースへの接続を確立するDBConnectorの実装です。
type postgresConnector struct{}

func (c *postgresConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return openWithPool("postgres", "PostgreSQL", cfg)
}

func init() {
	RegisterConnector("postgres", &postgresConnector{})
}
