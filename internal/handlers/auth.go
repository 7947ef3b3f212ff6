package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"esg-go-api/internal/models"
)

// LocalUserID is the fiber.Locals key holding the token subject
const LocalUserID = "userID"

// RequireAuth verifies an HS256 bearer token signed with secret and stores
// its subject under LocalUserID.
func RequireAuth(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *fiber.Ctx) error {
		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return unauthorized(c, "missing bearer token")
		}

		token, err := parser.Parse(strings.TrimSpace(raw), func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return unauthorized(c, "invalid bearer token")
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return unauthorized(c, "token has no subject")
		}
		c.Locals(LocalUserID, sub)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error:   "Unauthorized",
		Message: message,
		Code:    fiber.StatusUnauthorized,
	})
}
