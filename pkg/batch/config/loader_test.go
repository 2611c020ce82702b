package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviebatch/pkg/batch/config"
)

const testYAML = `
database:
  type: sqlite
  path: /tmp/batch.db
batch:
  api_endpoint: "http://example.com/movies.json"
  chunk_size: 25
system:
  logging:
    level: DEBUG
`

func TestBytesConfigLoader_Defaults(t *testing.T) {
	cfg, err := config.NewBytesConfigLoader(nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "movieJob", cfg.Batch.JobName)
	assert.Equal(t, "out/movies.csv", cfg.Batch.OutputPath)
	assert.Equal(t, 10, cfg.Batch.ChunkSize)
	assert.Equal(t, 60, cfg.Batch.HTTPTimeoutSeconds)
	assert.True(t, cfg.Database.IsMemory())
	assert.Equal(t, "INFO", cfg.System.Logging.Level)
}

func TestBytesConfigLoader_YAMLKeepsUnsetDefaults(t *testing.T) {
	cfg, err := config.NewBytesConfigLoader([]byte(testYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/movies.json", cfg.Batch.APIEndpoint)
	assert.Equal(t, 25, cfg.Batch.ChunkSize)
	assert.Equal(t, "out/movies.csv", cfg.Batch.OutputPath)
	assert.Equal(t, "DEBUG", cfg.System.Logging.Level)
	assert.False(t, cfg.Database.IsMemory())
	assert.Equal(t, "/tmp/batch.db", cfg.Database.ConnectionString())
	assert.Equal(t, "sqlite:///tmp/batch.db", cfg.Database.MigrationURL())
	assert.Equal(t, []byte(testYAML), []byte(cfg.EmbeddedConfig))
}

func TestBytesConfigLoader_EnvOverrides(t *testing.T) {
	t.Setenv("BATCH_API_ENDPOINT", "http://localhost:1/movies.json")
	t.Setenv("BATCH_OUTPUT_PATH", "/tmp/out/movies.csv")
	t.Setenv("BATCH_CHUNK_SIZE", "not-a-number")
	t.Setenv("DATABASE_TYPE", "memory")

	cfg, err := config.NewBytesConfigLoader([]byte(testYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:1/movies.json", cfg.Batch.APIEndpoint)
	assert.Equal(t, "/tmp/out/movies.csv", cfg.Batch.OutputPath)
	// 不正な数値は無視され YAML の値が残る
	assert.Equal(t, 25, cfg.Batch.ChunkSize)
	assert.True(t, cfg.Database.IsMemory())
}

func TestBytesConfigLoader_InvalidYAML(t *testing.T) {
	_, err := config.NewBytesConfigLoader([]byte("batch: [unterminated")).Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	pg := config.DatabaseConfig{Type: "postgres", Host: "db", Port: 5432, Database: "batch", User: "u", Password: "p@ss"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/batch?sslmode=disable", pg.ConnectionString())

	rs := pg
	rs.Type = "redshift"
	assert.Equal(t, "redshift://u:p%40ss@db:5432/batch?sslmode=disable", rs.MigrationURL())

	my := config.DatabaseConfig{Type: "mysql", Host: "db", Port: 3306, Database: "batch", User: "u", Password: "p"}
	assert.Equal(t, "u:p@tcp(db:3306)/batch?parseTime=true", my.ConnectionString())
	assert.Equal(t, "mysql://u:p@tcp(db:3306)/batch?parseTime=true", my.MigrationURL())

	assert.Equal(t, "", config.DatabaseConfig{Type: "oracle"}.ConnectionString())
	assert.Equal(t, "batch.db", config.DatabaseConfig{Type: "sqlite"}.ConnectionString())
}
