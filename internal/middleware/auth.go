package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/islandbitcoin/rewards-backend/internal/auth"
	"github.com/islandbitcoin/rewards-backend/internal/config"
	"github.com/islandbitcoin/rewards-backend/internal/services"
	"go.uber.org/zap"
)

const CtxPubkey = "pubkey"

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxPubkey, claims.Pubkey)

		return c.Next()
	}
}

func GetPubkey(c *fiber.Ctx) string {
	pk, _ := c.Locals(CtxPubkey).(string)
	return pk
}

// AdminMiddleware requires the authenticated pubkey to be in the admin set
// (config allow-list or the claimed admin registry).
func AdminMiddleware(admins *services.AdminService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, err := admins.IsAdmin(c.Context(), GetPubkey(c))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "admin check failed"})
		}
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}
		return c.Next()
	}
}
