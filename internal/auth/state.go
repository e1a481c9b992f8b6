package auth

type State int

const (
	StateInit State = iota
	StateAwaitingOtp
	StateOtpSubmitted
	StateAuthenticated
	StateTokenTriggered
	StateAwaitingOtpForToken
	StateTokenIssued
	StateFailed
)

var stateNames = map[State]string{
	StateInit:                "INIT",
	StateAwaitingOtp:         "AWAITING_OTP",
	StateOtpSubmitted:        "OTP_SUBMITTED",
	StateAuthenticated:       "AUTHENTICATED",
	StateTokenTriggered:      "TOKEN_TRIGGERED",
	StateAwaitingOtpForToken: "AWAITING_OTP_FOR_TOKEN",
	StateTokenIssued:         "TOKEN_ISSUED",
	StateFailed:              "FAILED",
}

func (s State) String() string {
	name, ok := stateNames[s]
	if !ok {
		return "UNKNOWN"
	}
	return name
}

// Terminal reports whether an attempt in this state has finished.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateAuthenticated || s == StateTokenIssued
}

type Transition struct {
	From State
	To   State
}
