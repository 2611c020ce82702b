package config

import (
	"fmt"
	"net/url"
	"strings"
)

// EmbeddedConfig は、設定ファイルの内容を保持するためのフィールドです。
// main.go から渡される埋め込み設定を格納します。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

// DatabaseConfig は JobRepository が使用するデータベースの設定です。
// Type が空または "memory" の場合はインメモリのリポジトリが使用されます。
type DatabaseConfig struct {
	Type      string `yaml:"type"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Sslmode   string `yaml:"sslmode"`
	Account   string `yaml:"account"`   // snowflake
	Schema    string `yaml:"schema"`    // snowflake
	Warehouse string `yaml:"warehouse"` // snowflake
	Path      string `yaml:"path"`      // sqlite のファイルパス
	// コネクションプール設定
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// IsMemory はインメモリリポジトリを使用する設定かどうかを返します。
func (c DatabaseConfig) IsMemory() bool {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	return t == "" || t == "memory"
}

// ConnectionString は database/sql のドライバに渡す DSN を返します。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Database, c.sslmode())
	case "mysql":
		// DATETIME を time.Time として読むために parseTime が必要
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "snowflake":
		return fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s",
			url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Account, c.Database, c.Schema, c.Warehouse)
	case "sqlite":
		return c.sqlitePath()
	default:
		return ""
	}
}

// MigrationURL は golang-migrate のデータベースドライバが期待する URL を返します。
func (c DatabaseConfig) MigrationURL() string {
	switch strings.ToLower(c.Type) {
	case "postgres":
		return c.ConnectionString()
	case "redshift":
		return strings.Replace(c.ConnectionString(), "postgres://", "redshift://", 1)
	case "mysql":
		return "mysql://" + c.ConnectionString()
	case "snowflake":
		return "snowflake://" + c.ConnectionString()
	case "sqlite":
		return "sqlite://" + c.sqlitePath()
	default:
		return ""
	}
}

func (c DatabaseConfig) sslmode() string {
	if c.Sslmode == "" {
		return "disable"
	}
	return c.Sslmode
}

func (c DatabaseConfig) sqlitePath() string {
	if c.Path != "" {
		return c.Path
	}
	if c.Database != "" {
		return c.Database
	}
	return "batch.db"
}

// ItemRetryConfig はアイテムレベルのリトライ設定です。
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`
	InitialInterval     int      `yaml:"initial_interval"`     // ミリ秒
	RetryableExceptions []string `yaml:"retryable_exceptions"` // リトライ可能な例外のリスト (文字列)
}

// ItemSkipConfig はアイテムレベルのスキップ設定です。
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`
	SkippableExceptions []string `yaml:"skippable_exceptions"` // スキップ可能な例外のリスト (文字列)
}

type BatchConfig struct {
	JobName            string          `yaml:"job_name"`
	APIEndpoint        string          `yaml:"api_endpoint"`
	OutputPath         string          `yaml:"output_path"`
	HTTPTimeoutSeconds int             `yaml:"http_timeout_seconds"`
	ChunkSize          int             `yaml:"chunk_size"`
	ItemRetry          ItemRetryConfig `yaml:"item_retry"`
	ItemSkip           ItemSkipConfig  `yaml:"item_skip"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

type Config struct {
	Database       DatabaseConfig `yaml:"database"`
	Batch          BatchConfig    `yaml:"batch"`
	System         SystemConfig   `yaml:"system"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"` // 埋め込み設定を格納するためのフィールド。YAMLからは読み込まない。
}

// NewConfig はデフォルト値を設定した Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
		},
		Batch: BatchConfig{
			JobName:            "movieJob",
			OutputPath:         "out/movies.csv",
			HTTPTimeoutSeconds: 60,
			ChunkSize:          10,
			ItemRetry: ItemRetryConfig{
				MaxAttempts:         0, // デフォルトはリトライなし
				InitialInterval:     1000,
				RetryableExceptions: []string{},
			},
			ItemSkip: ItemSkipConfig{
				SkipLimit:           0, // デフォルトはスキップなし
				SkippableExceptions: []string{},
			},
		},
		Database: DatabaseConfig{
			Type: "memory",
		},
	}
}
