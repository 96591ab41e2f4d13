package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	auth "github.com/vaultx/vaultx-auth"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, auth.Migrate(context.Background(), db, auth.WithMigrationLogger(silentLogger{})))

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func setupRepositories(t *testing.T, opts ...auth.UsersOption) auth.RepositoryManager {
	t.Helper()

	repo := auth.NewRepositoryManager(setupTestDB(t), opts...)
	repo.MustValidate()
	return repo
}
