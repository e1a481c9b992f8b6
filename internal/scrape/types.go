package scrape

import (
	"context"
	"scrapebridge/internal/auth"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/fetch"
	"time"
)

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
)

type Transaction struct {
	Identifier       string            `json:"identifier,omitempty"`
	Date             time.Time         `json:"date"`
	ProcessedDate    time.Time         `json:"processedDate"`
	OriginalAmount   float64           `json:"originalAmount"`
	OriginalCurrency string            `json:"originalCurrency"`
	ChargedAmount    float64           `json:"chargedAmount"`
	Description      string            `json:"description"`
	Memo             string            `json:"memo,omitempty"`
	Status           TransactionStatus `json:"status"`
}

type Account struct {
	AccountNumber string        `json:"accountNumber"`
	Balance       *float64      `json:"balance,omitempty"`
	Txns          []Transaction `json:"txns"`
}

// Session is the authenticated handle given to an institution's Collector.
type Session struct {
	// Direct is always set.
	Direct fetch.Transport
	// InContext is set when the session runs next to a browser page.
	InContext fetch.Transport
	// StartDate bounds the data that should be collected.
	StartDate time.Time
	Telemetry telemetry.API
}

// Transport prefers the in-context transport when there is one.
func (s *Session) Transport() fetch.Transport {
	if s.InContext != nil {
		return s.InContext
	}
	return s.Direct
}

// Collector fetches accounts once the session is authenticated.
type Collector interface {
	Collect(ctx context.Context, session *Session) ([]Account, error)
}

// Institution is everything an institution adapter provides.
type Institution interface {
	auth.Institution
	Collector
}

// Factory creates a fresh institution adapter bound to `session`.
type Factory func(session *Session) (Institution, error)

type ErrorType string

const (
	ErrorTypeGeneric        ErrorType = "GENERIC"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION"
	ErrorTypeConfiguration  ErrorType = "CONFIGURATION"
	ErrorTypeTransport      ErrorType = "TRANSPORT"
	ErrorTypeTimeout        ErrorType = "TIMEOUT"
)

type ScrapeOptions struct {
	Credentials      auth.Credentials
	OtpCodeRetriever auth.OtpRetriever
	OtpLongTermToken string
	// StartDate defaults to one year before now.
	StartDate time.Time
}

type ScrapeResult struct {
	Success      bool      `json:"success"`
	Accounts     []Account `json:"accounts,omitempty"`
	ErrorType    ErrorType `json:"errorType,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

type TriggerResult struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type TokenResult struct {
	Success                    bool   `json:"success"`
	LongTermTwoFactorAuthToken string `json:"longTermTwoFactorAuthToken,omitempty"`
	ErrorMessage               string `json:"errorMessage,omitempty"`
}
