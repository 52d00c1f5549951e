package sequence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Sequence{}))
	return db
}

func TestNextFormatsAndIncrements(t *testing.T) {
	store := NewStore(newTestDB(t), "PR", 5)
	ctx := context.Background()

	first, err := store.Next(ctx, KeyRequisition)
	require.NoError(t, err)
	assert.Equal(t, "PR00001", first)

	second, err := store.Next(ctx, KeyRequisition)
	require.NoError(t, err)
	assert.Equal(t, "PR00002", second)
}

func TestNextKeepsKeysIndependent(t *testing.T) {
	store := NewStore(newTestDB(t), "PR", 5)
	ctx := context.Background()

	_, err := store.Next(ctx, KeyRequisition)
	require.NoError(t, err)

	other, err := store.Next(ctx, "purchase.order")
	require.NoError(t, err)
	assert.Equal(t, "PR00001", other)
}

func TestNewStoreDefaults(t *testing.T) {
	store := NewStore(newTestDB(t), "", 0)

	ref, err := store.Next(context.Background(), KeyRequisition)
	require.NoError(t, err)
	assert.Equal(t, "PR00001", ref)
}

func TestNextCustomPrefixAndPadding(t *testing.T) {
	store := NewStore(newTestDB(t), "REQ-", 3)

	ref, err := store.Next(context.Background(), KeyRequisition)
	require.NoError(t, err)
	assert.Equal(t, "REQ-001", ref)
}
