// Package onezero is the adapter for the OneZero bank mobile API. Logins go through
// the identity service (device token, sms otp, id token, access token) and account
// data comes from the mobile graphql endpoint.
package onezero

import (
	"context"
	"errors"
	"fmt"
	"scrapebridge/internal/auth"
	"scrapebridge/internal/components/assert"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/fetch"
	"scrapebridge/internal/graphql"
	"scrapebridge/internal/scrape"
	"strings"
)

const (
	report_onezero_login      = "onezero.login"
	report_onezero_otp        = "onezero.otp"
	report_onezero_collect    = "onezero.collect"
	report_onezero_movements  = "onezero.movements"
	report_onezero_portfolios = "onezero.portfolios"
)

const (
	DefaultIdentityUrl = "https://identity.tfd-bank.com/v1"
	DefaultGraphqlUrl  = "https://mobile.tfd-bank.com/mobile-graph/graphql"
)

var errNoFactor = errors.New("onezero requires an otp code retriever or a long-term token")

type Config struct {
	IdentityUrl string
	GraphqlUrl  string
}

// Bank implements scrape.Institution for OneZero. It keeps the device token, the
// pending otp context and the access token of one session.
type Bank struct {
	cfg     Config
	session *scrape.Session
	tel     telemetry.API

	deviceToken string
	otpContext  string
	accessToken string
}

// Factory returns a scrape.Factory creating a Bank per session.
func Factory(cfg Config) scrape.Factory {
	return func(session *scrape.Session) (scrape.Institution, error) {
		return New(cfg, session), nil
	}
}

func New(cfg Config, session *scrape.Session) *Bank {
	assert.NotNil(session)
	assert.NotNil(session.Direct)
	tel := session.Telemetry
	if tel == nil {
		tel = telemetry.NoopAPI{}
	}
	if cfg.IdentityUrl == "" {
		cfg.IdentityUrl = DefaultIdentityUrl
	}
	if cfg.GraphqlUrl == "" {
		cfg.GraphqlUrl = DefaultGraphqlUrl
	}
	cfg.IdentityUrl = strings.TrimSuffix(cfg.IdentityUrl, "/")
	return &Bank{
		cfg:     cfg,
		session: session,
		tel:     telemetry.NewScopedAPI("onezero", tel),
	}
}

func (b *Bank) RequiresSecondFactor() bool {
	return true
}

func (b *Bank) Login(ctx context.Context, creds auth.Credentials) error {
	return &auth.AuthenticationError{Message: errNoFactor.Error(), Err: errNoFactor}
}

func (b *Bank) StartOtp(ctx context.Context, creds auth.Credentials) error {
	if creds.PhoneNumber == "" {
		return &auth.ConfigurationError{Field: "phoneNumber"}
	}
	return b.TriggerTwoFactor(ctx, creds.PhoneNumber)
}

func (b *Bank) SubmitOtp(ctx context.Context, creds auth.Credentials, code string) error {
	otpToken, err := b.ExchangeForLongTermToken(ctx, code)
	if err != nil {
		return err
	}
	return b.LoginWithToken(ctx, creds, otpToken)
}

// LoginWithToken exchanges the otp token for an id token and then an access token.
func (b *Bank) LoginWithToken(ctx context.Context, creds auth.Credentials, token string) error {
	b.tel.ReportDebug(report_onezero_login)

	idToken, err := postIdentity[idTokenResult](ctx, b.session.Direct, "get id token", b.cfg.IdentityUrl+pathIdToken, idTokenRequest{
		OtpSmsToken: token,
		Email:       creds.Identifier(),
		Password:    creds.Password,
		PinCode:     "",
	})
	if err != nil {
		b.tel.ReportWarning(report_onezero_login, fmt.Errorf("get id token: %w", err))
		return err
	}

	access, err := postIdentity[accessTokenResult](ctx, b.session.Direct, "get access token", b.cfg.IdentityUrl+pathAccessToken, accessTokenRequest{
		IdToken: idToken.IdToken,
		Pass:    creds.Password,
	})
	if err != nil {
		b.tel.ReportWarning(report_onezero_login, fmt.Errorf("get access token: %w", err))
		return err
	}
	if access.AccessToken == "" {
		return &auth.AuthenticationError{Message: "onezero did not return an access token"}
	}

	b.accessToken = access.AccessToken
	return nil
}

// TriggerTwoFactor registers a device and has an sms otp sent to `phone`.
func (b *Bank) TriggerTwoFactor(ctx context.Context, phone string) error {
	b.tel.ReportDebug(report_onezero_otp, "prepare")

	device, err := postIdentity[deviceTokenResult](ctx, b.session.Direct, "get device token", b.cfg.IdentityUrl+pathDeviceToken, deviceTokenRequest{
		ExtClientId: "mobile",
		Os:          "Android",
	})
	if err != nil {
		b.tel.ReportWarning(report_onezero_otp, fmt.Errorf("device token: %w", err))
		return err
	}
	b.deviceToken = device.DeviceToken

	prepared, err := postIdentity[otpPrepareResult](ctx, b.session.Direct, "prepare otp", b.cfg.IdentityUrl+pathOtpPrepare, otpPrepareRequest{
		FactorValue: phone,
		DeviceToken: b.deviceToken,
		OtpChannel:  otpChannelSmsOtp,
	})
	if err != nil {
		b.tel.ReportWarning(report_onezero_otp, fmt.Errorf("prepare: %w", err))
		return err
	}
	b.otpContext = prepared.OtpContext
	return nil
}

// ExchangeForLongTermToken verifies the sms code, the resulting otp token is what
// OneZero accepts as a long-term token on later logins.
func (b *Bank) ExchangeForLongTermToken(ctx context.Context, code string) (string, error) {
	if b.otpContext == "" {
		return "", &auth.AuthenticationError{Message: "no otp was requested for this session"}
	}
	b.tel.ReportDebug(report_onezero_otp, "verify")

	verified, err := postIdentity[otpVerifyResult](ctx, b.session.Direct, "verify otp", b.cfg.IdentityUrl+pathOtpVerify, otpVerifyRequest{
		OtpContext: b.otpContext,
		OtpCode:    code,
	})
	if err != nil {
		b.tel.ReportWarning(report_onezero_otp, fmt.Errorf("verify: %w", err))
		return "", err
	}
	return verified.OtpToken, nil
}

func (b *Bank) gqlClient() *graphql.Client {
	return graphql.NewClient(
		b.session.Transport(),
		b.cfg.GraphqlUrl,
		fetch.Header{
			"Authorization": fmt.Sprintf("Bearer %s", b.accessToken),
			"Content-Type":  "application/json",
		},
		b.tel,
	)
}
