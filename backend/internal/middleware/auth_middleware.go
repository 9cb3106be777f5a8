package middleware

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/auth"
)

// Locals keys set by Protected.
const (
	LocalUserID   = "userID"
	LocalUsername = "username"
	LocalAccount  = "account"
)

// Protected is a middleware function to verify JWT authentication.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		// Expecting "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid authorization header format"})
		}

		claims, err := auth.ValidateJWT(parts[1])
		if err != nil {
			log.Debugf("JWT validation error: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}
		if claims.Account == (common.Address{}) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token carries no account"})
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalUsername, claims.Username)
		c.Locals(LocalAccount, claims.Account)
		return c.Next()
	}
}

// Account returns the caller's ledger address set by Protected.
func Account(c *fiber.Ctx) (common.Address, bool) {
	a, ok := c.Locals(LocalAccount).(common.Address)
	return a, ok
}
