package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/authgate/internal/platform/errors"
	"github.com/louisbranch/authgate/internal/services/auth/oauth"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// upstreamError maps an authorization server failure. Unknown or expired
// challenges are not found; anything else is a technical error.
func upstreamError(err error) error {
	var statusErr *oauth.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound, http.StatusGone:
			return &echo.HTTPError{Code: http.StatusNotFound, Message: "login challenge not found", Internal: err}
		}
	}
	return &echo.HTTPError{Code: http.StatusBadGateway, Message: oauth.ErrorTechnical, Internal: err}
}

func (h *handler) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := h.classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		h.logger.Warn("write error response", zap.Error(err))
	}
}

func (h *handler) classify(err error) (int, errorBody) {
	if domainErr, ok := apperrors.As(err); ok {
		status := domainErr.Code.HTTPStatus()
		if status >= http.StatusInternalServerError {
			return status, errorBody{Code: oauth.ErrorTechnical, Message: "a technical error occurred"}
		}
		return status, errorBody{Code: string(domainErr.Code), Message: domainErr.Message}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			message = m
		}
		if he.Code >= http.StatusInternalServerError {
			return he.Code, errorBody{Code: oauth.ErrorTechnical, Message: message}
		}
		return he.Code, errorBody{Code: statusCode(he.Code), Message: message}
	}
	return http.StatusInternalServerError, errorBody{Code: oauth.ErrorTechnical, Message: "a technical error occurred"}
}

// statusCode renders a status as an upper snake case code, e.g. NOT_FOUND.
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return string(apperrors.CodeUnknown)
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
