package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/models"
)

func TestAutoMigrateCreatesIdentityTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	for _, table := range []interface{}{
		&models.User{},
		&models.LinkedProvider{},
		&models.PendingOTP{},
		&models.CacheEntry{},
	} {
		require.True(t, migrator.HasTable(table), "expected table for %T to exist", table)
	}

	require.True(t, migrator.HasIndex(&models.LinkedProvider{}, "idx_linked_provider_subject"))
}

func TestAutoMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db))
}
