package middleware

import (
	"strings"

	"github.com/famcare/backend/internal/models"
	"github.com/famcare/backend/pkg/logger"
	"github.com/famcare/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"
)

const (
	identityKeyLocal = "identityKey"
	currentUserKey   = "currentUser"
)

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "http://localhost:3001,http://127.0.0.1:3001",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// RequireAuth validates the bearer token and stores the verified identity key.
// It deliberately does not require a local user row: the provisioning flow is
// exactly the case where the principal exists upstream but not here yet.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	c.Locals(identityKeyLocal, claims.IdentityKey)

	var user models.User
	if err := a.DB.First(&user, "identity_key = ?", claims.IdentityKey).Error; err == nil {
		c.Locals(currentUserKey, &user)
	}

	return c.Next()
}

// GetIdentityKey returns the verified identity key set by RequireAuth.
func GetIdentityKey(c *fiber.Ctx) string {
	value, _ := c.Locals(identityKeyLocal).(string)
	return value
}

// GetCurrentUser returns the local user row for the authenticated identity,
// or nil when the identity has not been provisioned yet.
func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
