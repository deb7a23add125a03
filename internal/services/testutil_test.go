package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/famcare/backend/internal/database"
	"github.com/famcare/backend/internal/models"
	"github.com/famcare/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// fakeLookup is the in-package registry double. Lookups resolve against the
// records map; calls are counted so tests can assert the engine consulted the
// registry at all.
type fakeLookup struct {
	records    map[string]PatientRecord
	findErr    error
	findCalls  int64
	validateOK bool
}

func (f *fakeLookup) FindPatient(_ context.Context, identityKey string) (*PatientRecord, error) {
	atomic.AddInt64(&f.findCalls, 1)
	if f.findErr != nil {
		return nil, f.findErr
	}
	if record, ok := f.records[identityKey]; ok {
		return &record, nil
	}
	return nil, fail(ErrNotFound, "identity not present in patient registry")
}

func (f *fakeLookup) Validate(_ context.Context, _ string) ValidationResult {
	return ValidationResult{OK: f.validateOK}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("failed enabling sqlite foreign keys: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}
	return db
}

var serviceTestShortIDCounter int64

func serviceTestShortID() string {
	return fmt.Sprintf("S%07d", atomic.AddInt64(&serviceTestShortIDCounter, 1))
}

func seedUser(t *testing.T, db *gorm.DB, identityKey, email string, isLeader bool) *models.User {
	t.Helper()

	hash, err := utils.HashPassword("password123")
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		ShortID:      serviceTestShortID(),
		IdentityKey:  identityKey,
		Email:        email,
		Username:     generatedUsername(identityKey),
		PasswordHash: hash,
		IsActive:     true,
		IsLeader:     isLeader,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed seeding user: %v", err)
	}
	return user
}
