package database

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/models"
)

func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "20250709_create_users_and_catalog",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.User{}, &models.Laboratory{}, &models.Program{}, &models.YearLevel{}, &models.Student{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("students", "year_levels", "programs", "laboratories", "users")
			},
		},
		{
			ID: "20250709_create_computers",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Computer{}, &models.ComputerStudent{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("computer_students", "computers")
			},
		},
		{
			ID: "20250905_create_computer_logs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.ComputerLog{}, &models.ComputerActivityLog{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("computer_activity_logs", "computer_logs")
			},
		},
		{
			ID: "20250923_create_audit_logs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.AuditLog{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("audit_logs")
			},
		},
	}
}

func Migrate(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, Migrations()).Migrate()
}
