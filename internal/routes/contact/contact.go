package routesContact

import (
	"fmt"
	"net/http"

	"github.com/dkuznets/cupid-bot/pkg/deeplink"
	"github.com/labstack/echo"
)

// Handler resolves a signed contact token from a match introduction and
// redirects to the transport's durable user link.
func Handler(c echo.Context, links *deeplink.Signer) error {
	userID, err := links.Resolve(c.Param("token"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown contact"})
	}
	return c.Redirect(http.StatusFound, fmt.Sprintf("tg://user?id=%d", userID))
}
