package authkit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	Users() UserStore
}

type mngr struct {
	db    *bun.DB
	users UserStore
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:    db,
		users: NewUsersRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) Users() UserStore {
	return m.users
}

// DialectMigrationsFS returns the migrations written for the dialect of db.
func DialectMigrationsFS(db *bun.DB) (fs.FS, error) {
	var dir string
	switch name := db.Dialect().Name(); name {
	case dialect.SQLite:
		dir = "sqlite"
	case dialect.PG:
		dir = "postgres"
	default:
		return nil, fmt.Errorf("no migrations for dialect %s", name)
	}
	return fs.Sub(GetMigrationsFS(), dir)
}

// Migrate applies the embedded SQL migrations for the dialect of db and
// returns the names of the migrations that ran.
func Migrate(ctx context.Context, db *bun.DB) ([]string, error) {
	dialectFS, err := DialectMigrationsFS(db)
	if err != nil {
		return nil, err
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(dialectFS); err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, err
	}

	if group.IsZero() {
		return nil, nil
	}

	names := make([]string, 0, len(group.Migrations))
	for _, m := range group.Migrations {
		names = append(names, m.Name)
	}
	return names, nil
}
