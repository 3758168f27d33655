package login

import "time"

// Outcome is the result of one login decision. The set of implementations is
// closed; callers switch over the concrete types.
type Outcome interface {
	outcome()
	// Recoverable reports whether the user may simply retry from the login
	// form.
	Recoverable() bool
}

// ThrottlingActive means the client IP is cooling down after too many
// failures.
type ThrottlingActive struct{}

// CredentialsMismatch means the identifier or password was wrong. The two
// cases are indistinguishable.
type CredentialsMismatch struct{}

// UserBanned means an active global ban blocks the account.
type UserBanned struct {
	Reason string
	// ExpiresAt is nil for an indefinite ban.
	ExpiresAt *time.Time
}

// MissedBan reports a ban that started and ended while the user was away.
type MissedBan struct {
	Reason    string
	StartTime time.Time
	EndTime   time.Time
}

// NoGameOwnership means the client requires game ownership the account lacks.
type NoGameOwnership struct{}

// SuccessfulLogin carries the authenticated account.
type SuccessfulLogin struct {
	UserID   string
	Username string
}

// TechnicalError wraps an infrastructure failure.
type TechnicalError struct {
	Err error
}

func (ThrottlingActive) outcome()    {}
func (CredentialsMismatch) outcome() {}
func (UserBanned) outcome()          {}
func (MissedBan) outcome()           {}
func (NoGameOwnership) outcome()     {}
func (SuccessfulLogin) outcome()     {}
func (TechnicalError) outcome()      {}

func (ThrottlingActive) Recoverable() bool    { return true }
func (CredentialsMismatch) Recoverable() bool { return true }
func (UserBanned) Recoverable() bool          { return false }
func (MissedBan) Recoverable() bool           { return true }
func (NoGameOwnership) Recoverable() bool     { return false }
func (SuccessfulLogin) Recoverable() bool     { return false }
func (TechnicalError) Recoverable() bool      { return false }

// Name returns a stable label for logs and span attributes.
func Name(o Outcome) string {
	switch o.(type) {
	case ThrottlingActive:
		return "throttling_active"
	case CredentialsMismatch:
		return "credentials_mismatch"
	case UserBanned:
		return "user_banned"
	case MissedBan:
		return "missed_ban"
	case NoGameOwnership:
		return "no_game_ownership"
	case SuccessfulLogin:
		return "successful_login"
	case TechnicalError:
		return "technical_error"
	default:
		return "unknown"
	}
}
