package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tablemates/backend/internal/auth"
)

const (
	// UserIDKey is the fiber locals key for the authenticated user ID.
	UserIDKey = "user_id"
	// EmailKey is the fiber locals key for the authenticated user's email.
	EmailKey = "email"
)

// GetUserID extracts the authenticated user ID from the request. Returns
// empty string if the request is unauthenticated.
func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(UserIDKey).(string)
	return userID
}

// GetEmail extracts the authenticated user's email from the request.
func GetEmail(c *fiber.Ctx) string {
	email, _ := c.Locals(EmailKey).(string)
	return email
}

// RequireAuth validates the bearer token and stores the user's identity in
// the request locals. Websocket upgrades cannot set headers from the
// browser, so a `token` query parameter is accepted as a fallback.
func RequireAuth(jwtManager *auth.JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return fiber.NewError(fiber.StatusUnauthorized, auth.ErrMissingToken.Error())
		}

		claims, err := jwtManager.Validate(tokenString)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, auth.ErrInvalidToken.Error())
		}

		c.Locals(UserIDKey, claims.UserID)
		c.Locals(EmailKey, claims.Email)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
