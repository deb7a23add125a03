package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/famcare/backend/internal/database"
	"github.com/famcare/backend/internal/middleware"
	"github.com/famcare/backend/internal/models"
	"github.com/famcare/backend/internal/services"
	"github.com/famcare/backend/pkg/logger"
	"github.com/famcare/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	registry *stubRegistry
}

// stubRegistry stands in for the national patient registry. Lookups hit the
// patients map; validation always passes unless toggled off.
type stubRegistry struct {
	patients   map[string]services.PatientRecord
	validateOK bool
}

func (s *stubRegistry) FindPatient(_ context.Context, identityKey string) (*services.PatientRecord, error) {
	if record, ok := s.patients[identityKey]; ok {
		return &record, nil
	}
	return nil, services.ErrNotFound
}

func (s *stubRegistry) Validate(_ context.Context, _ string) services.ValidationResult {
	return services.ValidationResult{OK: s.validateOK}
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

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

	// The engine relies on the SET NULL cascade; sqlite only honors it with
	// foreign keys switched on.
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("failed enabling sqlite foreign keys: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	registry := &stubRegistry{
		patients:   map[string]services.PatientRecord{},
		validateOK: true,
	}

	familyService := services.NewFamilyService(db, registry)
	leaderService := services.NewLeaderService(db)

	provisionHandler := NewProvisionHandler(familyService)
	groupsHandler := NewGroupsHandler(db, familyService)
	leadersHandler := NewLeadersHandler(db, leaderService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	api.Post("/family/provision", authMiddleware.RequireAuth, provisionHandler.Provision)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:shortId", groupsHandler.RemoveMember)

	leaderRoutes := api.Group("/leaders", authMiddleware.RequireAuth)
	leaderRoutes.Post("/", leadersHandler.Create)
	leaderRoutes.Get("/", leadersHandler.List)
	leaderRoutes.Get("/:shortId", leadersHandler.Get)
	leaderRoutes.Put("/:shortId", leadersHandler.Update)
	leaderRoutes.Delete("/:shortId", leadersHandler.Delete)

	return &testEnv{app: app, db: db, registry: registry}
}

var testShortIDCounter int64

func nextTestShortID(prefix string) string {
	return fmt.Sprintf("%s%07d", prefix, atomic.AddInt64(&testShortIDCounter, 1))
}

func createTestLeader(t *testing.T, db *gorm.DB, identityKey, email string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword("password123")
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		ShortID:          nextTestShortID("U"),
		IdentityKey:      identityKey,
		Email:            email,
		Username:         "fam-test",
		PasswordHash:     hash,
		FirstName:        "Test",
		LastNamePaternal: "Leader",
		IsActive:         true,
		IsLeader:         true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test leader: %v", err)
	}

	token, err := utils.GenerateToken(identityKey)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
