package proxy

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"github.com/kgourjau/BridgeAI/pkg/llm"
)

var errInvalidToken = errors.New("invalid or expired token")

// bearerGate returns the middleware guarding the API routes:
//
//	no token configured    -> 500
//	no Authorization       -> 401
//	not "Bearer <token>"   -> 401
//	wrong token            -> 403
func (p *Proxy) bearerGate() fiber.Handler {
	check := keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			expected := p.settings.Load().BearerToken
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) == 1 {
				return true, nil
			}
			return false, errInvalidToken
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, errInvalidToken) {
				return c.Status(fiber.StatusForbidden).JSON(llm.ErrorResponse{Error: "Invalid or expired token"})
			}
			if c.Get(fiber.HeaderAuthorization) == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(llm.ErrorResponse{Error: "Authorization header is missing"})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(llm.ErrorResponse{
				Error: "Authorization header must be in 'Bearer <token>' format",
			})
		},
	})

	return func(c *fiber.Ctx) error {
		if p.settings.Load().BearerToken == "" {
			return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
				Error: "Bearer token is not configured on the server.",
			})
		}
		return check(c)
	}
}
