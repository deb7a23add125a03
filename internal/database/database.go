package database

import (
	"fmt"

	"github.com/famcare/backend/internal/config"
	"github.com/famcare/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the two tables plus the constraints the engine leans on:
// unique indexes on short_id/identity_key/email/app_token/leader_id and the
// SET NULL foreign key from users.group_id to family_groups.short_id.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.FamilyGroup{},
		&models.User{},
	)
}
