package account

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/authgate/internal/platform/errors"
)

const (
	audienceActivation    = "activation"
	audiencePasswordReset = "password_reset"
	minSecretBytes        = 32
)

var (
	// ErrTokenInvalid indicates a malformed, tampered or already used token.
	ErrTokenInvalid = apperrors.New(apperrors.CodeAccountTokenInvalid, "token is invalid")
	// ErrTokenExpired indicates a token past its expiry.
	ErrTokenExpired = apperrors.New(apperrors.CodeAccountTokenExpired, "token is expired")
)

// TokenConfig configures signed account tokens.
type TokenConfig struct {
	Secret        string        `env:"AUTHGATE_TOKEN_SECRET"`
	Issuer        string        `env:"AUTHGATE_TOKEN_ISSUER"       envDefault:"authgate"`
	ActivationTTL time.Duration `env:"AUTHGATE_ACTIVATION_TTL"     envDefault:"48h"`
	ResetTTL      time.Duration `env:"AUTHGATE_PASSWORD_RESET_TTL" envDefault:"1h"`
}

// Validate checks the signing secret and lifetimes.
func (c TokenConfig) Validate() error {
	if len(c.Secret) < minSecretBytes {
		return fmt.Errorf("AUTHGATE_TOKEN_SECRET must be at least %d bytes", minSecretBytes)
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("token issuer is required")
	}
	if c.ActivationTTL <= 0 || c.ResetTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}

// activationClaims carry a pending registration until the owner of the email
// confirms it.
type activationClaims struct {
	jwt.RegisteredClaims
	Username       string `json:"username"`
	Email          string `json:"email"`
	PasswordHash   string `json:"password_hash"`
	RegistrationIP string `json:"registration_ip,omitempty"`
	TermsVersion   string `json:"terms_version"`
}

// resetClaims bind a reset to the password hash current at issue time, so a
// token stops working once any reset succeeds.
type resetClaims struct {
	jwt.RegisteredClaims
	Fingerprint string `json:"fingerprint"`
}

type tokenSigner struct {
	cfg   TokenConfig
	clock func() time.Time
}

func (s tokenSigner) registered(subject, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.clock().UTC()
	return jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s tokenSigner) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s tokenSigner) parse(raw, audience string, claims jwt.Claims) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrTokenInvalid
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return mapJWTError(err)
	}
	return nil
}

func (s tokenSigner) issueActivation(claims activationClaims) (string, error) {
	claims.RegisteredClaims = s.registered(claims.Email, audienceActivation, s.cfg.ActivationTTL)
	return s.sign(claims)
}

func (s tokenSigner) parseActivation(raw string) (activationClaims, error) {
	var claims activationClaims
	if err := s.parse(raw, audienceActivation, &claims); err != nil {
		return activationClaims{}, err
	}
	return claims, nil
}

func (s tokenSigner) issueReset(userID, passwordHash string) (string, error) {
	return s.sign(resetClaims{
		RegisteredClaims: s.registered(userID, audiencePasswordReset, s.cfg.ResetTTL),
		Fingerprint:      fingerprint(passwordHash),
	})
}

func (s tokenSigner) parseReset(raw string) (resetClaims, error) {
	var claims resetClaims
	if err := s.parse(raw, audiencePasswordReset, &claims); err != nil {
		return resetClaims{}, err
	}
	if claims.Subject == "" || claims.Fingerprint == "" {
		return resetClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return apperrors.Wrap(apperrors.CodeAccountTokenInvalid, "token is invalid", err)
}
