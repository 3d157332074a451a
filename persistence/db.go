// Package persistence opens the bun database handle used by the user store.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Options selects the database engine.
type Options struct {
	Type        string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

// Open connects to the database described by opts and pings it.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	sqldb, dialect, err := connect(opts)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, dialect)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func connect(opts Options) (*sql.DB, schema.Dialect, error) {
	switch opts.engine() {
	case TypeSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, opts.DSN)
		if err != nil {
			return nil, nil, err
		}
		if isMemoryDSN(opts.DSN) {
			sqldb.SetMaxOpenConns(1)
		}
		return sqldb, sqlitedialect.New(), nil
	case TypePostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(opts.DSN)))
		return sqldb, pgdialect.New(), nil
	}
	return nil, nil, fmt.Errorf("unsupported database type %q", opts.Type)
}

func (o Options) engine() string {
	switch strings.ToLower(strings.TrimSpace(o.Type)) {
	case TypeSQLite, "sqlite3", "":
		return TypeSQLite
	case TypePostgres, "postgresql", "pg":
		return TypePostgres
	}
	return ""
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
