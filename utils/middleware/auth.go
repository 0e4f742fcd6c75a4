package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/utils/auth"
	"github.com/ohmiler/milerdev-sub000/utils/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	db         *gorm.DB
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *auth.JWTManager, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager, db: db}
}

// Required is middleware that requires a valid JWT access token
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := m.claimsFromHeader(c)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				return response.Unauthorized(c, "Token has expired")
			}
			return response.Unauthorized(c, "Invalid or missing token")
		}

		var user model.User
		if err := m.db.First(&user, claims.UserID).Error; err != nil {
			return response.Unauthorized(c, "User not found")
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("user_role", user.Role)
		c.Locals("user", &user)

		return c.Next()
	}
}

// RequireAdmin requires a valid token whose user holds the admin role.
// Must run after Required.
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetUser(c)
		if !ok || user == nil {
			return response.Unauthorized(c, "Authentication required")
		}
		if !user.IsAdmin() {
			return response.Forbidden(c, "Admin access required")
		}
		return c.Next()
	}
}

func (m *AuthMiddleware) claimsFromHeader(c *fiber.Ctx) (*auth.Claims, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, auth.ErrInvalidToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, auth.ErrInvalidToken
	}

	claims, err := m.jwtManager.ValidateToken(parts[1])
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "access" {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

// GetUserID extracts the authenticated user id from context
func GetUserID(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("user_id").(uint)
	return userID, ok
}

// GetUser extracts the full user object from context
func GetUser(c *fiber.Ctx) (*model.User, bool) {
	user, ok := c.Locals("user").(*model.User)
	return user, ok
}
