package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// sqlDBAdapter は sql.DB を database.DBConnection インターフェースに適合させるアダプターです。
type sqlDBAdapter struct {
	db      *sql.DB
	dialect string
}

// NewSQLDBAdapter は新しい sqlDBAdapter のインスタンスを作成します。
func NewSQLDBAdapter(db *sql.DB, dialect string) DBConnection {
	return &sqlDBAdapter{db: db, dialect: strings.ToLower(dialect)}
}

func (a *sqlDBAdapter) Close() error {
	return a.db.Close()
}

func (a *sqlDBAdapter) PingContext(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *sqlDBAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.db.ExecContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlDBAdapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlDBAdapter) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return a.db.QueryRowContext(ctx, Rebind(a.dialect, query), args...)
}

func (a *sqlDBAdapter) Dialect() string {
	return a.dialect
}

// Rebind は "?" プレースホルダーを方言に合わせて書き換えます。
// postgres と redshift は $1, $2 ... 形式、それ以外はそのままです。
// クエリ内の文字列リテラルに "?" を含めないでください。
func Rebind(dialect, query string) string {
	switch dialect {
	case "postgres", "redshift":
	default:
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
