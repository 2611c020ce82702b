package database

import (
	"context"
	"database/sql"
)

// DBConnection はデータベース接続のインターフェースです。
// sql.DB の必要なメソッドを抽象化し、SQL 方言を公開します。
type DBConnection interface {
	Close() error
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	// Dialect は "postgres" や "mysql" などのデータベースタイプを返します。
	Dialect() string
}
