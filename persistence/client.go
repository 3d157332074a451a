package persistence

import (
	"context"
	"io/fs"
	"time"

	pbun "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// MigrationsLabel names the embedded migrations in validation reports.
const MigrationsLabel = "data/sql/migrations"

const defaultPingTimeout = 5 * time.Second

// Logger receives the migration report.
type Logger interface {
	Info(msg string, args ...any)
}

func (o Options) GetDebug() bool {
	return o.Debug
}

func (o Options) GetDriver() string {
	return o.engine()
}

func (o Options) GetServer() string {
	return o.DSN
}

func (o Options) GetPingTimeout() time.Duration {
	if o.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return o.PingTimeout
}

func (o Options) GetOtelIdentifier() string {
	return ""
}

// OpenMigrated opens the database through a go-persistence-bun client,
// validates that migrations carries a directory for every supported
// dialect, and applies the set matching opts.Type.
func OpenMigrated(ctx context.Context, opts Options, migrations fs.FS, logger Logger) (*bun.DB, error) {
	sqldb, dialect, err := connect(opts)
	if err != nil {
		return nil, err
	}

	client, err := pbun.New(opts, sqldb, dialect)
	if err != nil {
		sqldb.Close()
		return nil, err
	}

	client.RegisterDialectMigrations(
		migrations,
		pbun.WithDialectSourceLabel(MigrationsLabel),
		pbun.WithValidationTargets(TypePostgres, TypeSQLite),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		client.DB().Close()
		return nil, err
	}

	if err := client.Migrate(ctx); err != nil {
		client.DB().Close()
		return nil, err
	}

	if report := client.Report(); report != nil && !report.IsZero() && logger != nil {
		logger.Info("migrations applied", "report", report.String())
	}

	return client.DB(), nil
}
