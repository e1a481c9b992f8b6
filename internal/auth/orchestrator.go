package auth

import (
	"context"
	"errors"
	"scrapebridge/internal/components/assert"
	"scrapebridge/internal/components/telemetry"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_orchestrator_authenticate   = "orchestrator.authenticate"
	report_orchestrator_trigger        = "orchestrator.trigger-two-factor"
	report_orchestrator_exchange_token = "orchestrator.exchange-token"
	report_orchestrator_transition     = "orchestrator.transition"
	report_orchestrator_metrics        = "orchestrator.metrics"
)

var (
	errEmptyOtp             = errors.New("otp code retriever returned an empty code")
	errSecondFactorRequired = errors.New("a second factor is required: provide an otp code retriever or a long-term token")
	errEmptyToken           = errors.New("institution returned an empty long-term token")
)

// Orchestrator drives one authentication attempt against one institution. It never
// retries, the first failure moves it to StateFailed and is returned as-is.
type Orchestrator struct {
	institution Institution
	tel         telemetry.API

	mutex   sync.Mutex
	state   State
	busy    bool
	history []Transition
	err     error
	token   string
}

func NewOrchestrator(institution Institution, tel telemetry.API) *Orchestrator {
	assert.NotNil(institution)
	assert.NotNil(tel)
	o := &Orchestrator{
		institution: institution,
		tel:         telemetry.NewScopedAPI("auth", tel),
		state:       StateInit,
	}
	if attemptCounterErr != nil {
		o.tel.ReportWarning(report_orchestrator_metrics, attemptCounterErr)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.state
}

// Err is the error that moved the attempt to StateFailed.
func (o *Orchestrator) Err() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.err
}

// Transitions returns every state change in order.
func (o *Orchestrator) Transitions() []Transition {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	out := make([]Transition, len(o.history))
	copy(out, o.history)
	return out
}

// LongTermToken is set once the attempt reaches StateTokenIssued.
func (o *Orchestrator) LongTermToken() string {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.token
}

func (o *Orchestrator) moveTo(next State) {
	o.mutex.Lock()
	o.history = append(o.history, Transition{From: o.state, To: next})
	prev := o.state
	o.state = next
	o.mutex.Unlock()

	o.tel.ReportDebug(report_orchestrator_transition, prev.String(), next.String())
}

func (o *Orchestrator) fail(reportId string, span trace.Span, err error) error {
	err = classify(err)

	o.mutex.Lock()
	o.err = err
	o.mutex.Unlock()
	o.moveTo(StateFailed)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.tel.ReportWarning(reportId, err)
	return err
}

// begin takes the attempt if it is in one of `allowed` and no other entry point
// is running, finish must be called once the operation returns.
func (o *Orchestrator) begin(operation string, allowed ...State) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.busy {
		return &StateError{Operation: operation, State: o.state, InFlight: true}
	}
	for _, s := range allowed {
		if o.state == s {
			o.busy = true
			return nil
		}
	}
	return &StateError{Operation: operation, State: o.state}
}

func (o *Orchestrator) finish() {
	o.mutex.Lock()
	o.busy = false
	o.mutex.Unlock()
}

func countAttempt(ctx context.Context, path string, outcome State) {
	if attemptCounter == nil {
		return
	}
	attemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("outcome", outcome.String()),
	))
}

// Authenticate logs in with `creds`. A long-term token in `factor` goes straight to
// StateAuthenticated, otherwise the otp retriever is asked for exactly one code.
func (o *Orchestrator) Authenticate(ctx context.Context, creds Credentials, factor Factor) error {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	err := o.begin("authenticate", StateInit)
	if err != nil {
		return err
	}
	defer o.finish()

	var path string
	switch {
	case factor.LongTermToken != "":
		path = "token"
	case factor.OtpRetriever != nil:
		path = "otp"
	default:
		path = "credentials"
	}
	span.SetAttributes(attribute.String("path", path))
	o.tel.ReportDebug(report_orchestrator_authenticate, path)
	defer func() {
		countAttempt(ctx, path, o.State())
	}()

	err = creds.validate()
	if err != nil {
		return o.fail(report_orchestrator_authenticate, span, err)
	}

	switch path {
	case "token":
		err = o.institution.LoginWithToken(ctx, creds, factor.LongTermToken)
		if err != nil {
			return o.fail(report_orchestrator_authenticate, span, err)
		}
		o.moveTo(StateAuthenticated)
		return nil
	case "otp":
		return o.authenticateOtp(ctx, span, creds, factor.OtpRetriever)
	}

	if o.institution.RequiresSecondFactor() {
		return o.fail(
			report_orchestrator_authenticate,
			span,
			&AuthenticationError{Message: errSecondFactorRequired.Error(), Err: errSecondFactorRequired},
		)
	}
	err = o.institution.Login(ctx, creds)
	if err != nil {
		return o.fail(report_orchestrator_authenticate, span, err)
	}
	o.moveTo(StateAuthenticated)
	return nil
}

func (o *Orchestrator) authenticateOtp(ctx context.Context, span trace.Span, creds Credentials, retriever OtpRetriever) error {
	err := o.institution.StartOtp(ctx, creds)
	if err != nil {
		return o.fail(report_orchestrator_authenticate, span, err)
	}
	o.moveTo(StateAwaitingOtp)

	code, err := retriever.RetrieveOtp(ctx)
	if err != nil {
		return o.fail(report_orchestrator_authenticate, span, err)
	}
	if code == "" {
		return o.fail(
			report_orchestrator_authenticate,
			span,
			&AuthenticationError{Message: errEmptyOtp.Error(), Err: errEmptyOtp},
		)
	}
	o.moveTo(StateOtpSubmitted)

	err = o.institution.SubmitOtp(ctx, creds, code)
	if err != nil {
		return o.fail(report_orchestrator_authenticate, span, err)
	}
	o.moveTo(StateAuthenticated)
	return nil
}

// TriggerTwoFactorAuth starts minting a long-term token by having the institution send
// a one time password to `phone`. It is accepted on a fresh orchestrator as well as an
// authenticated one.
func (o *Orchestrator) TriggerTwoFactorAuth(ctx context.Context, phone string) error {
	ctx, span := tracer.Start(ctx, "TriggerTwoFactorAuth")
	defer span.End()

	err := o.begin("trigger two factor auth", StateInit, StateAuthenticated)
	if err != nil {
		return err
	}
	defer o.finish()
	o.tel.ReportDebug(report_orchestrator_trigger)

	if phone == "" {
		return o.fail(report_orchestrator_trigger, span, &ConfigurationError{Field: "phoneNumber"})
	}

	o.moveTo(StateTokenTriggered)
	err = o.institution.TriggerTwoFactor(ctx, phone)
	if err != nil {
		return o.fail(report_orchestrator_trigger, span, err)
	}
	o.moveTo(StateAwaitingOtpForToken)
	return nil
}

// ExchangeForLongTermToken answers the challenge started by TriggerTwoFactorAuth and
// returns the long-term token.
func (o *Orchestrator) ExchangeForLongTermToken(ctx context.Context, code string) (string, error) {
	ctx, span := tracer.Start(ctx, "ExchangeForLongTermToken")
	defer span.End()

	err := o.begin("exchange for long-term token", StateAwaitingOtpForToken)
	if err != nil {
		return "", err
	}
	defer o.finish()
	o.tel.ReportDebug(report_orchestrator_exchange_token)
	defer func() {
		countAttempt(ctx, "mint", o.State())
	}()

	if code == "" {
		return "", o.fail(
			report_orchestrator_exchange_token,
			span,
			&AuthenticationError{Message: errEmptyOtp.Error(), Err: errEmptyOtp},
		)
	}

	token, err := o.institution.ExchangeForLongTermToken(ctx, code)
	if err != nil {
		return "", o.fail(report_orchestrator_exchange_token, span, err)
	}
	if token == "" {
		return "", o.fail(
			report_orchestrator_exchange_token,
			span,
			&AuthenticationError{Message: errEmptyToken.Error(), Err: errEmptyToken},
		)
	}

	o.mutex.Lock()
	o.token = token
	o.mutex.Unlock()
	o.moveTo(StateTokenIssued)
	return token, nil
}
