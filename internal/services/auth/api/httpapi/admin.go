package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/louisbranch/authgate/internal/services/auth/ban"
)

const adminSecretHeader = "X-Admin-Secret"

type banForm struct {
	UserID   string `json:"user_id" form:"user_id"`
	Level    string `json:"level" form:"level"`
	Reason   string `json:"reason" form:"reason"`
	Duration string `json:"duration" form:"duration"`
}

type ownershipForm struct {
	Provider   string `json:"provider" form:"provider"`
	ExternalID string `json:"external_id" form:"external_id"`
	Owned      bool   `json:"owned" form:"owned"`
}

type banView struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	Level     string     `json:"level"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func newBanView(b ban.Ban) banView {
	return banView{
		ID:        b.ID,
		UserID:    b.UserID,
		Level:     string(b.Level),
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt,
		ExpiresAt: b.ExpiresAt,
		RevokedAt: b.RevokedAt,
	}
}

func (h *handler) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret := c.Request().Header.Get(adminSecretHeader)
		if h.cfg.AdminSecret == "" || secret == "" ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.AdminSecret)) != 1 {
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
		return next(c)
	}
}

func (h *handler) handleCreateBan(c echo.Context) error {
	var form banForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid ban form")
	}
	level, err := ban.ParseLevel(form.Level)
	if err != nil {
		return err
	}
	var duration time.Duration
	if form.Duration != "" {
		duration, err = time.ParseDuration(form.Duration)
		if err != nil || duration < 0 {
			return ban.ErrInvalidExpiry
		}
	}
	created, err := h.accounts.BanUser(c.Request().Context(), form.UserID, level, form.Reason, duration)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newBanView(created))
}

func (h *handler) handleRevokeBan(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid ban id")
	}
	revoked, err := h.accounts.RevokeBan(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newBanView(revoked))
}

func (h *handler) handleListBans(c echo.Context) error {
	bans, err := h.accounts.ListBans(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	views := make([]banView, 0, len(bans))
	for _, b := range bans {
		views = append(views, newBanView(b))
	}
	return c.JSON(http.StatusOK, views)
}

func (h *handler) handleLinkOwnership(c echo.Context) error {
	var form ownershipForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid ownership form")
	}
	if err := h.accounts.LinkOwnership(c.Request().Context(), c.Param("id"), form.Provider, form.ExternalID, form.Owned); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
