package connector

import (
	"database/sql"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake ドライバ

	"moviebatch/pkg/batch/config"
)

// snowflakeConnector はSnowflakeへの接続を確立するDBConnectorの実装です。
// DSN は user:password@account/database/schema?warehouse=... の形式です。
type snowflakeConnector struct{}

func (c *snowflakeConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return openWithPool("snowflake", "Snowflake", cfg)
}

func init() {
	RegisterConnector("snowflake", &snowflakeConnector{})
}
