package auth

// State is where a login session is in its lifecycle. Revoked applies to one
// token, never to the account.
type State int

const (
	StateAnonymous State = iota
	StatePending2FA
	StateAuthenticated
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StatePending2FA:
		return "pending_2fa"
	case StateAuthenticated:
		return "authenticated"
	case StateRevoked:
		return "revoked"
	default:
		return "anonymous"
	}
}
