package oauth

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config describes how to reach the authorization server admin API and how
// login decisions are reported back to it.
type Config struct {
	AdminURL string        `env:"AUTHGATE_HYDRA_ADMIN_URL" envDefault:"http://127.0.0.1:4445"`
	Timeout  time.Duration `env:"AUTHGATE_HYDRA_TIMEOUT"   envDefault:"5s"`
	// ClientID enables client-credentials authentication for admin calls.
	ClientID     string   `env:"AUTHGATE_HYDRA_CLIENT_ID"`
	ClientSecret string   `env:"AUTHGATE_HYDRA_CLIENT_SECRET"`
	TokenURL     string   `env:"AUTHGATE_HYDRA_TOKEN_URL"`
	Scopes       []string `env:"AUTHGATE_HYDRA_SCOPES" envSeparator:","`
	// RememberFor is how long the authorization server remembers an accepted
	// login when the user asks to be remembered.
	RememberFor time.Duration `env:"AUTHGATE_LOGIN_REMEMBER_FOR" envDefault:"720h"`
	// OwnershipRequiredClients lists OAuth client ids that only admit
	// accounts with game ownership.
	OwnershipRequiredClients []string `env:"AUTHGATE_OWNERSHIP_REQUIRED_CLIENTS" envSeparator:","`
}

// Validate checks the admin URL and credential settings.
func (c Config) Validate() error {
	parsed, err := url.Parse(strings.TrimSpace(c.AdminURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("hydra admin url must be absolute")
	}
	if strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.TokenURL) == "" {
		return errors.New("hydra token url is required with a client id")
	}
	if c.RememberFor < 0 {
		return errors.New("remember duration must not be negative")
	}
	return nil
}

// RequiresOwnership reports whether clientID only admits owners.
func (c Config) RequiresOwnership(clientID string) bool {
	for _, id := range trimCSV(c.OwnershipRequiredClients) {
		if id == clientID {
			return true
		}
	}
	return false
}

// trimCSV removes empty entries from a string slice.
func trimCSV(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
