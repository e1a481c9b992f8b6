package auth

import "context"

// Institution is what an institution adapter implements so the orchestrator can drive
// its login. Implementations may hold state between calls (device tokens, challenge
// contexts), one instance serves one orchestrator.
type Institution interface {
	// RequiresSecondFactor reports whether Login without a factor is refused.
	RequiresSecondFactor() bool
	// Login logs in with only the credentials.
	Login(ctx context.Context, creds Credentials) error
	// StartOtp asks the institution to send a one time password for a login.
	StartOtp(ctx context.Context, creds Credentials) error
	// SubmitOtp answers the challenge started by StartOtp and completes the login.
	SubmitOtp(ctx context.Context, creds Credentials, code string) error
	// LoginWithToken logs in with a long-term token in place of the OTP challenge.
	LoginWithToken(ctx context.Context, creds Credentials, token string) error

	// TriggerTwoFactor asks the institution to send a one time password to `phone`
	// in order to mint a long-term token.
	TriggerTwoFactor(ctx context.Context, phone string) error
	// ExchangeForLongTermToken answers the challenge started by TriggerTwoFactor.
	ExchangeForLongTermToken(ctx context.Context, code string) (string, error)
}
