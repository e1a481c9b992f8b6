// Package scrape is the entry point callers use: it authenticates through the
// orchestrator and hands the resulting session to the institution's collector.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"scrapebridge/internal/auth"
	"scrapebridge/internal/components/assert"
	"scrapebridge/internal/components/chrono"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/fetch"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	report_scraper_scrape    = "scraper.scrape"
	report_scraper_mint      = "scraper.mint-token"
	report_scraper_accounts  = "scraper.accounts"
	report_scraper_recovered = "scraper.recovered"
)

const defaultLookbackDays = 365

type Options struct {
	Direct fetch.DirectOptions
	// Page, when set, backs the session's in-context transport.
	Page  fetch.Page
	Clock chrono.API
}

// Scraper runs scrapes against one institution. Every Scrape call uses a fresh
// session and orchestrator, a token mint keeps its orchestrator between
// TriggerTwoFactorAuth and GetLongTermTwoFactorToken.
type Scraper struct {
	factory Factory
	opts    Options
	tel     telemetry.API

	mutex   sync.Mutex
	minting *auth.Orchestrator
}

func NewScraper(factory Factory, opts Options, tel telemetry.API) *Scraper {
	assert.NotNil(factory)
	assert.NotNil(tel)
	if opts.Clock == nil {
		clock, _ := chrono.NewStandardImpl("")
		opts.Clock = clock
	}
	return &Scraper{
		factory: factory,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("scrape", tel),
	}
}

func (s *Scraper) newSession(startDate time.Time) (*Session, Institution, error) {
	direct, err := fetch.NewDirect(s.opts.Direct, s.tel)
	if err != nil {
		return nil, nil, fmt.Errorf("create direct transport: %w", err)
	}
	session := &Session{
		Direct:    direct,
		StartDate: s.startDate(startDate),
		Telemetry: s.tel,
	}
	if s.opts.Page != nil {
		session.InContext = fetch.NewInContext(s.opts.Page, s.tel)
	}

	institution, err := s.factory(session)
	if err != nil {
		return nil, nil, fmt.Errorf("create institution: %w", err)
	}
	return session, institution, nil
}

func (s *Scraper) startDate(requested time.Time) time.Time {
	if requested.IsZero() {
		return chrono.DaysAgo(s.opts.Clock, defaultLookbackDays)
	}
	return requested
}

// Scrape authenticates and collects accounts, it always returns a result and never
// panics. Authentication failures return before any collection starts.
func (s *Scraper) Scrape(ctx context.Context, opts ScrapeOptions) (result ScrapeResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("unexpected failure: %v", r)
			s.tel.ReportBroken(report_scraper_recovered, err)
			result = failure(err)
		}
	}()

	// runId ties together the reports of a single scrape.
	runId := uuid.NewString()

	session, institution, err := s.newSession(opts.StartDate)
	if err != nil {
		s.tel.ReportBroken(report_scraper_scrape, runId, err)
		return failure(err)
	}
	s.tel.ReportDebug(report_scraper_scrape, "started", runId, session.StartDate)

	orchestrator := auth.NewOrchestrator(institution, s.tel)
	err = orchestrator.Authenticate(ctx, opts.Credentials, auth.Factor{
		OtpRetriever:  opts.OtpCodeRetriever,
		LongTermToken: opts.OtpLongTermToken,
	})
	if err != nil {
		s.tel.ReportWarning(report_scraper_scrape, runId, fmt.Errorf("authenticate: %w", err))
		return failure(err)
	}

	accounts, err := institution.Collect(ctx, session)
	if err != nil {
		s.tel.ReportWarning(report_scraper_scrape, runId, fmt.Errorf("collect: %w", err))
		return failure(err)
	}
	s.tel.ReportCount(report_scraper_accounts, int64(len(accounts)))
	s.tel.ReportDebug(report_scraper_scrape, "finished", runId)

	return ScrapeResult{Success: true, Accounts: accounts}
}

// TriggerTwoFactorAuth starts minting a long-term token, a previous unfinished mint
// is discarded.
func (s *Scraper) TriggerTwoFactorAuth(ctx context.Context, phoneNumber string) TriggerResult {
	_, institution, err := s.newSession(time.Time{})
	if err != nil {
		s.tel.ReportBroken(report_scraper_mint, err)
		return TriggerResult{ErrorMessage: err.Error()}
	}

	orchestrator := auth.NewOrchestrator(institution, s.tel)
	s.mutex.Lock()
	s.minting = orchestrator
	s.mutex.Unlock()

	err = orchestrator.TriggerTwoFactorAuth(ctx, phoneNumber)
	if err != nil {
		return TriggerResult{ErrorMessage: err.Error()}
	}
	return TriggerResult{Success: true}
}

// GetLongTermTwoFactorToken finishes the mint started by TriggerTwoFactorAuth.
func (s *Scraper) GetLongTermTwoFactorToken(ctx context.Context, otpCode string) TokenResult {
	s.mutex.Lock()
	orchestrator := s.minting
	s.mutex.Unlock()
	if orchestrator == nil {
		return TokenResult{ErrorMessage: "triggerTwoFactorAuth must be called before getLongTermTwoFactorToken"}
	}

	token, err := orchestrator.ExchangeForLongTermToken(ctx, otpCode)
	if err != nil {
		return TokenResult{ErrorMessage: err.Error()}
	}

	s.mutex.Lock()
	if s.minting == orchestrator {
		s.minting = nil
	}
	s.mutex.Unlock()
	return TokenResult{Success: true, LongTermTwoFactorAuthToken: token}
}

func failure(err error) ScrapeResult {
	message := err.Error()
	if message == "" {
		message = "unknown error"
	}
	return ScrapeResult{ErrorType: errorType(err), ErrorMessage: message}
}

func errorType(err error) ErrorType {
	var (
		authErr      *auth.AuthenticationError
		configErr    *auth.ConfigurationError
		transportErr *fetch.TransportError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.As(err, &configErr):
		return ErrorTypeConfiguration
	case errors.As(err, &authErr):
		return ErrorTypeAuthentication
	case errors.As(err, &transportErr):
		return ErrorTypeTransport
	}
	return ErrorTypeGeneric
}
