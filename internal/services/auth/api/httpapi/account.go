package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/louisbranch/authgate/internal/services/auth/account"
	"github.com/louisbranch/authgate/internal/services/auth/login"
	"github.com/louisbranch/authgate/internal/services/auth/oauth"
)

type registerForm struct {
	Username    string `form:"username" json:"username"`
	Email       string `form:"email" json:"email"`
	Password    string `form:"password" json:"password"`
	AcceptTerms bool   `form:"accept_terms" json:"accept_terms"`
}

type forgotForm struct {
	Email string `form:"email" json:"email"`
}

type resetForm struct {
	Token    string `form:"token" json:"token"`
	Password string `form:"password" json:"password"`
}

type changeForm struct {
	Identifier  string `form:"identifier" json:"identifier"`
	Password    string `form:"password" json:"password"`
	NewPassword string `form:"new_password" json:"new_password"`
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *handler) handleRegister(c echo.Context) error {
	var form registerForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid registration form")
	}
	err := h.accounts.Register(c.Request().Context(), account.RegisterInput{
		Username:    form.Username,
		Email:       form.Email,
		Password:    form.Password,
		IP:          c.RealIP(),
		AcceptTerms: form.AcceptTerms,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "activation_sent"})
}

func (h *handler) handleActivate(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	created, err := h.accounts.Activate(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, userView{ID: created.ID, Username: created.Username, Email: created.Email})
}

// Always accepted so the response does not reveal which emails exist.
func (h *handler) handleForgotPassword(c echo.Context) error {
	var form forgotForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	if err := h.accounts.RequestPasswordReset(c.Request().Context(), form.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "reset_sent"})
}

func (h *handler) handleResetPassword(c echo.Context) error {
	var form resetForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	if form.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	if err := h.accounts.ResetPassword(c.Request().Context(), form.Token, form.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleChangePassword authenticates with the current password through the
// login gate, so throttling and bans apply as they do for a login form.
func (h *handler) handleChangePassword(c echo.Context) error {
	var form changeForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	if form.Identifier == "" || form.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and password are required")
	}
	ctx := c.Request().Context()
	outcome := h.auth.Decide(ctx, login.Request{
		Identifier: form.Identifier,
		Password:   form.Password,
		IP:         c.RealIP(),
	})
	switch o := outcome.(type) {
	case login.SuccessfulLogin:
		if err := h.accounts.ChangePassword(ctx, o.UserID, form.Password, form.NewPassword); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	case login.ThrottlingActive:
		return c.JSON(http.StatusTooManyRequests, errorBody{Code: oauth.FormTooManyAttempts, Message: "Too many failed login attempts. Please try again later."})
	case login.CredentialsMismatch:
		return c.JSON(http.StatusForbidden, errorBody{Code: oauth.FormBadCredentials, Message: "Invalid username or password."})
	case login.UserBanned:
		return c.JSON(http.StatusForbidden, errorBody{Code: oauth.ErrorUserBanned, Message: oauth.BanDescription(o)})
	case login.MissedBan:
		return c.JSON(http.StatusConflict, errorBody{Code: oauth.FormMissedBan, Message: "Your account was banned while you were away. Log in again to continue."})
	case login.TechnicalError:
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: oauth.ErrorTechnical, Internal: o.Err}
	default:
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: oauth.ErrorTechnical}
	}
}
