package auth

import (
	"context"
	"strings"
)

// Credentials are secrets, they are never logged or persisted by this package.
type Credentials struct {
	Email       string
	Username    string
	Password    string
	PhoneNumber string
}

// Identifier is the email if there is one, the username otherwise.
func (c Credentials) Identifier() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Username
}

func (c Credentials) String() string {
	return "auth.Credentials{REDACTED}"
}

func (c Credentials) GoString() string {
	return c.String()
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.Identifier()) == "" {
		return &ConfigurationError{Field: "email"}
	}
	if c.Password == "" {
		return &ConfigurationError{Field: "password"}
	}
	return nil
}

// OtpRetriever returns the code of the current challenge, it is called exactly
// once per challenge.
type OtpRetriever interface {
	RetrieveOtp(ctx context.Context) (string, error)
}

type OtpRetrieverFunc func(ctx context.Context) (string, error)

func (f OtpRetrieverFunc) RetrieveOtp(ctx context.Context) (string, error) {
	return f(ctx)
}

// Factor is the second factor of an Authenticate call. A non-empty LongTermToken
// takes precedence and the OtpRetriever is never called.
type Factor struct {
	OtpRetriever  OtpRetriever
	LongTermToken string
}

// RetryEmpty wraps `inner` so that it is asked again for as long as it returns an empty
// code, `onEmpty` is called before every retry. A rejected code is never retried,
// this only covers the retriever itself coming back empty.
func RetryEmpty(inner OtpRetriever, onEmpty func(attempt int)) OtpRetriever {
	return OtpRetrieverFunc(func(ctx context.Context) (string, error) {
		for attempt := 1; ; attempt++ {
			code, err := inner.RetrieveOtp(ctx)
			if err != nil {
				return "", err
			}
			code = strings.TrimSpace(code)
			if code != "" {
				return code, nil
			}
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if onEmpty != nil {
				onEmpty(attempt)
			}
		}
	})
}
