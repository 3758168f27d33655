package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/louisbranch/authgate/internal/services/auth/oauth"
)

type loginForm struct {
	Challenge  string `form:"login_challenge" json:"login_challenge"`
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	Remember   bool   `form:"remember" json:"remember"`
}

func (h *handler) handleLoginStart(c echo.Context) error {
	challenge := strings.TrimSpace(c.QueryParam("login_challenge"))
	if challenge == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "login_challenge is required")
	}
	result, err := h.logins.Start(c.Request().Context(), challenge)
	if err != nil {
		return upstreamError(err)
	}
	return writeResult(c, result)
}

func (h *handler) handleLoginSubmit(c echo.Context) error {
	var form loginForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid login form")
	}
	form.Challenge = strings.TrimSpace(form.Challenge)
	if form.Challenge == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "login_challenge is required")
	}
	result, err := h.logins.Submit(c.Request().Context(), oauth.Credentials{
		Challenge:  form.Challenge,
		Identifier: form.Identifier,
		Password:   form.Password,
		IP:         c.RealIP(),
		Remember:   form.Remember,
	})
	if err != nil {
		return upstreamError(err)
	}
	return writeResult(c, result)
}

// writeResult redirects back to the authorization server or returns the form
// to show again. Bad credentials and throttling share status and shape.
func writeResult(c echo.Context, result oauth.Result) error {
	if result.RedirectTo != "" {
		return c.Redirect(http.StatusSeeOther, result.RedirectTo)
	}
	if result.Form == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "empty login result")
	}
	return c.JSON(http.StatusOK, result.Form)
}
