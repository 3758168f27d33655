package user

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/louisbranch/authgate/internal/platform/errors"
	"github.com/louisbranch/authgate/internal/platform/id"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyUsername indicates a missing username.
	ErrEmptyUsername = apperrors.New(apperrors.CodeUserEmptyUsername, "username is required")
	// ErrInvalidUsername indicates a username that does not match the required format.
	ErrInvalidUsername = apperrors.New(apperrors.CodeUserInvalidUsername, "username must be 3-32 lowercase alphanumeric, dot, dash, or underscore characters")
	// ErrInvalidEmail indicates an email address that cannot be parsed.
	ErrInvalidEmail = apperrors.New(apperrors.CodeUserInvalidEmail, "email address is invalid")
	// ErrTermsRequired indicates registration without an accepted terms version.
	ErrTermsRequired = apperrors.New(apperrors.CodeUserTermsRequired, "terms of service must be accepted")

	usernamePattern = regexp.MustCompile(`^[a-z0-9_.\-]{3,32}$`)
)

// User represents an identity record. Users are never hard-deleted.
type User struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	RegistrationIP string
	// SteamID links the account to an external platform identity. Empty when
	// the account was never linked.
	SteamID      string
	TermsVersion string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUserInput describes the metadata needed to create a user.
type CreateUserInput struct {
	Username       string
	Email          string
	PasswordHash   string
	RegistrationIP string
	TermsVersion   string
}

// CanonicalIdentifier folds a username or email into the form used for
// storage and lookups: NFKC-normalized, case-folded and trimmed.
func CanonicalIdentifier(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return cases.Fold().String(norm.NFKC.String(value))
}

// ValidateUsername enforces canonical username constraints.
func ValidateUsername(s string) error {
	if !usernamePattern.MatchString(s) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateEmail checks that s is a bare address without a display name.
func ValidateEmail(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return ErrInvalidEmail
	}
	return nil
}

// CreateUser creates a user identity from validated input.
func CreateUser(input CreateUserInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateUserInput(input)
	if err != nil {
		return User{}, err
	}
	if strings.TrimSpace(normalized.PasswordHash) == "" {
		return User{}, fmt.Errorf("password hash is required")
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:             userID,
		Username:       normalized.Username,
		Email:          normalized.Email,
		PasswordHash:   normalized.PasswordHash,
		RegistrationIP: normalized.RegistrationIP,
		TermsVersion:   normalized.TermsVersion,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// NormalizeCreateUserInput trims and canonicalizes input before validation.
func NormalizeCreateUserInput(input CreateUserInput) (CreateUserInput, error) {
	input.Username = CanonicalIdentifier(input.Username)
	if input.Username == "" {
		return CreateUserInput{}, ErrEmptyUsername
	}
	if err := ValidateUsername(input.Username); err != nil {
		return CreateUserInput{}, err
	}
	input.Email = CanonicalIdentifier(input.Email)
	if err := ValidateEmail(input.Email); err != nil {
		return CreateUserInput{}, err
	}
	input.RegistrationIP = strings.TrimSpace(input.RegistrationIP)
	input.TermsVersion = strings.TrimSpace(input.TermsVersion)
	if input.TermsVersion == "" {
		return CreateUserInput{}, ErrTermsRequired
	}
	return input, nil
}
