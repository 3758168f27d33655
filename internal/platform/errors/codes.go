// Package errors provides structured error handling for identity operations.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// User errors
	CodeUserEmptyUsername   Code = "USER_EMPTY_USERNAME"
	CodeUserInvalidUsername Code = "USER_INVALID_USERNAME"
	CodeUserInvalidEmail    Code = "USER_INVALID_EMAIL"
	CodeUserWeakPassword    Code = "USER_WEAK_PASSWORD"
	CodeUserAlreadyExists   Code = "USER_ALREADY_EXISTS"
	CodeUserTermsRequired   Code = "USER_TERMS_REQUIRED"

	// Account token errors
	CodeAccountTokenInvalid     Code = "ACCOUNT_TOKEN_INVALID"
	CodeAccountTokenExpired     Code = "ACCOUNT_TOKEN_EXPIRED"
	CodeAccountPasswordMismatch Code = "ACCOUNT_PASSWORD_MISMATCH"

	// Ban errors
	CodeBanInvalidLevel   Code = "BAN_INVALID_LEVEL"
	CodeBanEmptyReason    Code = "BAN_EMPTY_REASON"
	CodeBanInvalidExpiry  Code = "BAN_INVALID_EXPIRY"
	CodeBanAlreadyRevoked Code = "BAN_ALREADY_REVOKED"

	// Ownership errors
	CodeOwnershipInvalidLink Code = "OWNERSHIP_INVALID_LINK"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeUserEmptyUsername,
		CodeUserInvalidUsername,
		CodeUserInvalidEmail,
		CodeUserWeakPassword,
		CodeUserTermsRequired,
		CodeAccountTokenInvalid,
		CodeBanInvalidLevel,
		CodeBanEmptyReason,
		CodeBanInvalidExpiry,
		CodeOwnershipInvalidLink:
		return http.StatusBadRequest

	// Gone - the token was valid once
	case CodeAccountTokenExpired:
		return http.StatusGone

	// Forbidden - credentials did not match
	case CodeAccountPasswordMismatch:
		return http.StatusForbidden

	// Conflict - state doesn't allow operation
	case CodeUserAlreadyExists,
		CodeBanAlreadyRevoked:
		return http.StatusConflict

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
