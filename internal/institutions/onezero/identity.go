package onezero

import (
	"context"
	"fmt"
	"scrapebridge/internal/auth"
	"scrapebridge/internal/fetch"
)

const (
	pathDeviceToken  = "/devices/token"
	pathOtpPrepare   = "/otp/prepare"
	pathOtpVerify    = "/otp/verify"
	pathIdToken      = "/getIdToken"
	pathAccessToken  = "/sessions/token"
	otpChannelSmsOtp = "SMS_OTP"
)

type identityError struct {
	Message string `json:"message"`
}

// identityResponse is the envelope every identity endpoint answers with, failures
// come back with a non-2xx status and no resultData.
type identityResponse[T any] struct {
	ResultData *T              `json:"resultData"`
	Message    string          `json:"message"`
	Errors     []identityError `json:"errors"`
	Error      *identityError  `json:"error"`
}

func (r identityResponse[T]) errorMessage() string {
	switch {
	case len(r.Errors) > 0 && r.Errors[0].Message != "":
		return r.Errors[0].Message
	case r.Error != nil && r.Error.Message != "":
		return r.Error.Message
	case r.Message != "":
		return r.Message
	}
	return ""
}

// postIdentity posts to an identity endpoint, the direct transport does not check the
// status of a post so the payload decides whether the step succeeded.
func postIdentity[T any](ctx context.Context, transport fetch.Transport, step, url string, body any) (T, error) {
	var zero T

	raw, err := transport.Post(ctx, url, body, nil)
	if err != nil {
		return zero, err
	}
	res, err := fetch.Decode[identityResponse[T]](raw)
	if err != nil {
		return zero, &auth.AuthenticationError{
			Message: fmt.Sprintf("%s: unexpected response", step),
			Err:     err,
		}
	}
	if res == nil {
		return zero, &auth.AuthenticationError{Message: fmt.Sprintf("%s: empty response", step)}
	}
	if res.ResultData == nil {
		message := res.errorMessage()
		if message == "" {
			message = fmt.Sprintf("%s: missing result data", step)
		}
		return zero, &auth.AuthenticationError{Message: message}
	}
	return *res.ResultData, nil
}

type deviceTokenRequest struct {
	ExtClientId string `json:"extClientId"`
	Os          string `json:"os"`
}

type deviceTokenResult struct {
	DeviceToken string `json:"deviceToken"`
}

type otpPrepareRequest struct {
	FactorValue string `json:"factorValue"`
	DeviceToken string `json:"deviceToken"`
	OtpChannel  string `json:"otpChannel"`
}

type otpPrepareResult struct {
	OtpContext string `json:"otpContext"`
}

type otpVerifyRequest struct {
	OtpContext string `json:"otpContext"`
	OtpCode    string `json:"otpCode"`
}

type otpVerifyResult struct {
	OtpToken string `json:"otpToken"`
}

type idTokenRequest struct {
	OtpSmsToken string `json:"otpSmsToken"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PinCode     string `json:"pinCode"`
}

type idTokenResult struct {
	IdToken string `json:"idToken"`
}

type accessTokenRequest struct {
	IdToken string `json:"id_token"`
	Pass    string `json:"pass"`
}

type accessTokenResult struct {
	AccessToken string `json:"accessToken"`
}
