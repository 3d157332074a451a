package persistence_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authkit "github.com/goliatone/go-authkit"
	"github.com/goliatone/go-authkit/persistence"
)

func TestOptionsConfig(t *testing.T) {
	opts := persistence.Options{Type: "postgresql", DSN: "postgres://localhost/auth"}
	assert.Equal(t, persistence.TypePostgres, opts.GetDriver())
	assert.Equal(t, "postgres://localhost/auth", opts.GetServer())
	assert.Equal(t, 5*time.Second, opts.GetPingTimeout())

	opts.PingTimeout = time.Second
	assert.Equal(t, time.Second, opts.GetPingTimeout())
}

func TestOpenMigratedSQLite(t *testing.T) {
	ctx := context.Background()
	opts := persistence.Options{
		Type: persistence.TypeSQLite,
		DSN:  "file:" + filepath.Join(t.TempDir(), "auth.db"),
	}

	db, err := persistence.OpenMigrated(ctx, opts, authkit.GetMigrationsFS(), nil)
	require.NoError(t, err)
	defer db.Close()

	store := authkit.NewUsersRepository(db)
	user, err := store.Insert(ctx, &authkit.User{Username: "rita", Email: "rita@example.com"})
	require.NoError(t, err)

	found, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "rita", found.Username)
}
