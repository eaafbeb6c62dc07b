package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo"
)

const secretHeader = "X-Bot-Api-Secret-Token"

// WebhookSecret rejects webhook calls that do not carry the secret token
// agreed with the transport. An empty configured secret disables the check.
func WebhookSecret(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}

			got := c.Request().Header.Get(secretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"message": "invalid secret token"})
			}
			return next(c)
		}
	}
}
