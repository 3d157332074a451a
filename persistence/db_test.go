package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := Open(context.Background(), Options{Type: TypeSQLite, DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.NewRaw("SELECT 1").Scan(context.Background(), &n))
	assert.Equal(t, 1, n)
}

func TestOpenUnsupportedType(t *testing.T) {
	db, err := Open(context.Background(), Options{Type: "oracle", DSN: "x"})
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestIsMemoryDSN(t *testing.T) {
	assert.True(t, isMemoryDSN(""))
	assert.True(t, isMemoryDSN("file::memory:?cache=shared"))
	assert.True(t, isMemoryDSN("file:abc?mode=memory&cache=shared"))
	assert.False(t, isMemoryDSN("file:auth.db"))
}
