package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/config"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/utils"
)

func TestMigrateAndSeedAdminIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	cfg := &config.Config{AdminEmail: "root@lab.test", AdminPassword: "s3cret", AdminFullName: "Root"}
	log := zaptest.NewLogger(t)
	require.NoError(t, SeedAdmin(db, cfg, log))
	require.NoError(t, SeedAdmin(db, cfg, log))

	var admins []models.User
	require.NoError(t, db.Where("role = ?", "admin").Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, "root@lab.test", admins[0].Email)
	assert.NotEmpty(t, admins[0].UserID)
	assert.True(t, utils.CheckPassword(admins[0].Password, "s3cret"))
}
