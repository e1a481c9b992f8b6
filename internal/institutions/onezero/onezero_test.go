package onezero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"scrapebridge/internal/auth"
	"scrapebridge/internal/components/chrono"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/fetch"
	"scrapebridge/internal/scrape"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "user@bank.example"
	testPassword = "hunter2"
	testPhone    = "+972500000000"
	testCode     = "123456"
)

// fakeOneZero emulates the identity and graphql endpoints.
type fakeOneZero struct {
	t     *testing.T
	mutex sync.Mutex

	otpTokens   map[string]bool
	issued      int
	calls       map[string]int
	accessToken string
	movements   [][]map[string]any
	lastCursors []any
}

func newFakeOneZero(t *testing.T) (*fakeOneZero, *httptest.Server) {
	f := &fakeOneZero{
		t:           t,
		otpTokens:   map[string]bool{},
		calls:       map[string]int{},
		accessToken: "access-1",
		movements: [][]map[string]any{
			{
				movementJson("m3", "2024-05-20T10:00:00Z", "12.5", "DEBIT", "900.00"),
				movementJson("m2", "2024-05-10T10:00:00Z", "100", "CREDIT", "912.50"),
			},
			{
				movementJson("m1", "2024-04-01T10:00:00Z", "40", "DEBIT", "812.50"),
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func movementJson(id, timestamp, amount, creditDebit, balance string) map[string]any {
	return map[string]any{
		"movementId":        id,
		"movementTimestamp": timestamp,
		"valueDate":         timestamp[:10],
		"movementAmount":    amount,
		"movementCurrency":  "ILS",
		"creditDebit":       creditDebit,
		"description":       "movement " + id,
		"runningBalance":    balance,
	}
}

func (f *fakeOneZero) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (f *fakeOneZero) fail(w http.ResponseWriter, message string) {
	f.reply(w, http.StatusBadRequest, map[string]any{
		"errors": []map[string]string{{"message": message}},
	})
}

func (f *fakeOneZero) serve(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v1")
	f.calls[path]++

	var body map[string]any
	raw, _ := io.ReadAll(r.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			f.fail(w, "bad json")
			return
		}
	}
	assert.Equal(f.t, "application/json", r.Header.Get("Content-Type"))

	switch path {
	case pathDeviceToken:
		f.reply(w, 200, map[string]any{"resultData": map[string]string{"deviceToken": "device-1"}})
	case pathOtpPrepare:
		if body["deviceToken"] != "device-1" || body["otpChannel"] != "SMS_OTP" || body["factorValue"] != testPhone {
			f.fail(w, "invalid prepare request")
			return
		}
		f.reply(w, 200, map[string]any{"resultData": map[string]string{"otpContext": "otp-context-1"}})
	case pathOtpVerify:
		if body["otpContext"] != "otp-context-1" || body["otpCode"] != testCode {
			f.fail(w, "The code you entered is incorrect")
			return
		}
		f.issued++
		token := fmt.Sprintf("otp-token-%d", f.issued)
		f.otpTokens[token] = true
		f.reply(w, 200, map[string]any{"resultData": map[string]string{"otpToken": token}})
	case pathIdToken:
		token, _ := body["otpSmsToken"].(string)
		if !f.otpTokens[token] {
			f.fail(w, "invalid otp token")
			return
		}
		if body["email"] != testEmail || body["password"] != testPassword || body["pinCode"] != "" {
			f.fail(w, "invalid credentials")
			return
		}
		f.reply(w, 200, map[string]any{"resultData": map[string]string{"idToken": "id-token-1"}})
	case pathAccessToken:
		if body["id_token"] != "id-token-1" || body["pass"] != testPassword {
			f.fail(w, "invalid id token")
			return
		}
		f.reply(w, 200, map[string]any{"resultData": map[string]string{"accessToken": f.accessToken}})
	case "/graphql":
		f.serveGraphql(w, r, body)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOneZero) serveGraphql(w http.ResponseWriter, r *http.Request, body map[string]any) {
	if r.Header.Get("Authorization") != "Bearer access-1" {
		f.reply(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
		return
	}
	assert.Nil(f.t, body["operationName"])

	query, _ := body["query"].(string)
	switch {
	case strings.Contains(query, "GetCustomer"):
		f.reply(w, 200, map[string]any{"data": map[string]any{
			"customer": []map[string]any{{
				"customerId": "c1",
				"portfolios": []map[string]any{
					{"portfolioId": "p1", "portfolioNum": "111-222", "accounts": []map[string]string{{"accountId": "a1"}}},
					{"portfolioId": "p2", "portfolioNum": "empty", "accounts": []map[string]string{}},
				},
			}},
		}})
	case strings.Contains(query, "GetMovements"):
		variables, _ := body["variables"].(map[string]any)
		pagination, _ := variables["pagination"].(map[string]any)
		cursor := pagination["cursor"]
		f.lastCursors = append(f.lastCursors, cursor)

		page := 0
		if cursor == "page-2" {
			page = 1
		}
		hasMore := page == 0
		f.reply(w, 200, map[string]any{"data": map[string]any{
			"movements": map[string]any{
				"movements":  f.movements[page],
				"pagination": map[string]any{"hasMore": hasMore, "cursor": "page-2"},
			},
		}})
	default:
		f.reply(w, 200, map[string]any{"errors": []map[string]string{{"message": "unknown query"}}})
	}
}

func newTestScraper(srv *httptest.Server) *scrape.Scraper {
	return scrape.NewScraper(
		Factory(Config{IdentityUrl: srv.URL + "/v1/", GraphqlUrl: srv.URL + "/graphql"}),
		scrape.Options{
			Clock: chrono.Fixed{T: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)},
		},
		telemetry.NoopAPI{},
	)
}

func TestScrapeWithOtp(t *testing.T) {
	fake, srv := newFakeOneZero(t)
	scraper := newTestScraper(srv)

	result := scraper.Scrape(context.Background(), scrape.ScrapeOptions{
		Credentials: auth.Credentials{Email: testEmail, Password: testPassword, PhoneNumber: testPhone},
		OtpCodeRetriever: auth.OtpRetrieverFunc(func(ctx context.Context) (string, error) {
			return testCode, nil
		}),
		StartDate: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, result.Success, result.ErrorMessage)
	require.Len(t, result.Accounts, 1)

	account := result.Accounts[0]
	require.Equal(t, "111-222", account.AccountNumber)
	require.NotNil(t, account.Balance)
	require.Equal(t, 900.0, *account.Balance)
	require.Len(t, account.Txns, 2)
	require.Equal(t, "m3", account.Txns[0].Identifier)
	require.Equal(t, -12.5, account.Txns[0].ChargedAmount)
	require.Equal(t, 100.0, account.Txns[1].ChargedAmount)
	require.Equal(t, "ILS", account.Txns[1].OriginalCurrency)

	require.Equal(t, 1, fake.calls[pathOtpPrepare])
	require.Equal(t, 1, fake.calls[pathOtpVerify])
	require.Equal(t, []any{nil, "page-2"}, fake.lastCursors)
}

func TestTokenMintThenScrape(t *testing.T) {
	fake, srv := newFakeOneZero(t)

	minter := newTestScraper(srv)
	trigger := minter.TriggerTwoFactorAuth(context.Background(), testPhone)
	require.True(t, trigger.Success, trigger.ErrorMessage)
	token := minter.GetLongTermTwoFactorToken(context.Background(), testCode)
	require.True(t, token.Success, token.ErrorMessage)
	require.Equal(t, "otp-token-1", token.LongTermTwoFactorAuthToken)

	result := newTestScraper(srv).Scrape(context.Background(), scrape.ScrapeOptions{
		Credentials:      auth.Credentials{Email: testEmail, Password: testPassword},
		OtpLongTermToken: token.LongTermTwoFactorAuthToken,
		StartDate:        time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, result.Success, result.ErrorMessage)
	require.Len(t, result.Accounts[0].Txns, 3)

	// the token path never touches the otp endpoints
	require.Equal(t, 1, fake.calls[pathOtpPrepare])
	require.Equal(t, 1, fake.calls[pathOtpVerify])
	require.Equal(t, 1, fake.calls[pathIdToken])
}

func TestScrapeFailures(t *testing.T) {
	_, srv := newFakeOneZero(t)

	cases := []struct {
		name    string
		opts    scrape.ScrapeOptions
		message string
		kind    scrape.ErrorType
	}{
		{
			name: "no factor",
			opts: scrape.ScrapeOptions{
				Credentials: auth.Credentials{Email: testEmail, Password: testPassword},
			},
			kind: scrape.ErrorTypeAuthentication,
		},
		{
			name: "bad token",
			opts: scrape.ScrapeOptions{
				Credentials:      auth.Credentials{Email: testEmail, Password: testPassword},
				OtpLongTermToken: "revoked",
			},
			message: "invalid otp token",
			kind:    scrape.ErrorTypeAuthentication,
		},
		{
			name: "wrong code",
			opts: scrape.ScrapeOptions{
				Credentials: auth.Credentials{Email: testEmail, Password: testPassword, PhoneNumber: testPhone},
				OtpCodeRetriever: auth.OtpRetrieverFunc(func(ctx context.Context) (string, error) {
					return "000000", nil
				}),
			},
			message: "The code you entered is incorrect",
			kind:    scrape.ErrorTypeAuthentication,
		},
		{
			name: "missing phone",
			opts: scrape.ScrapeOptions{
				Credentials: auth.Credentials{Email: testEmail, Password: testPassword},
				OtpCodeRetriever: auth.OtpRetrieverFunc(func(ctx context.Context) (string, error) {
					return testCode, nil
				}),
			},
			kind: scrape.ErrorTypeConfiguration,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result := newTestScraper(srv).Scrape(context.Background(), c.opts)
			require.False(t, result.Success)
			require.NotEmpty(t, result.ErrorMessage)
			require.Equal(t, c.kind, result.ErrorType)
			if c.message != "" {
				require.Equal(t, c.message, result.ErrorMessage)
			}
		})
	}
}

func TestRejectedAccessToken(t *testing.T) {
	fake, srv := newFakeOneZero(t)
	fake.accessToken = "access-stale"

	result := newTestScraper(srv).Scrape(context.Background(), scrape.ScrapeOptions{
		Credentials: auth.Credentials{Email: testEmail, Password: testPassword, PhoneNumber: testPhone},
		OtpCodeRetriever: auth.OtpRetrieverFunc(func(ctx context.Context) (string, error) {
			return testCode, nil
		}),
	})
	require.False(t, result.Success)
	require.Empty(t, result.Accounts)
	require.Equal(t, "empty graphql response", result.ErrorMessage)
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	result := newTestScraper(srv).Scrape(context.Background(), scrape.ScrapeOptions{
		Credentials:      auth.Credentials{Email: testEmail, Password: testPassword},
		OtpLongTermToken: "otp-token-1",
	})
	require.False(t, result.Success)
	require.Equal(t, scrape.ErrorTypeTransport, result.ErrorType)
}

func TestToTransaction(t *testing.T) {
	txn, err := toTransaction(movement{
		MovementId:        "m1",
		MovementTimestamp: "2024-05-20T10:00:00+03:00",
		ValueDate:         "2024-05-21",
		MovementAmount:    json.Number("7.25"),
		MovementCurrency:  "ILS",
		CreditDebit:       "debit",
		Description:       "coffee",
	})
	require.NoError(t, err)

	expected := scrape.Transaction{
		Identifier:       "m1",
		Date:             time.Date(2024, time.May, 20, 7, 0, 0, 0, time.UTC),
		ProcessedDate:    time.Date(2024, time.May, 21, 0, 0, 0, 0, time.UTC),
		OriginalAmount:   -7.25,
		OriginalCurrency: "ILS",
		ChargedAmount:    -7.25,
		Description:      "coffee",
		Status:           scrape.TransactionCompleted,
	}
	if diff := cmp.Diff(expected, txn); diff != "" {
		t.Fatal("transaction mismatch (-want +got)\n", diff)
	}

	_, err = toTransaction(movement{MovementTimestamp: "yesterday"})
	require.Error(t, err)
}

func TestHttpDumpHasNoCredentials(t *testing.T) {
	_, srv := newFakeOneZero(t)
	dir := filepath.Join(t.TempDir(), "http")

	scraper := scrape.NewScraper(
		Factory(Config{IdentityUrl: srv.URL + "/v1", GraphqlUrl: srv.URL + "/graphql"}),
		scrape.Options{
			Direct: fetch.DirectOptions{DumpDir: dir},
			Clock:  chrono.Fixed{T: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)},
		},
		telemetry.NoopAPI{},
	)
	result := scraper.Scrape(context.Background(), scrape.ScrapeOptions{
		Credentials: auth.Credentials{Email: testEmail, Password: testPassword, PhoneNumber: testPhone},
		OtpCodeRetriever: auth.OtpRetrieverFunc(func(ctx context.Context) (string, error) {
			return testCode, nil
		}),
		StartDate: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, result.Success, result.ErrorMessage)

	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	// device, prepare, verify, id token, access token, customer, two movement pages
	require.Len(t, files, 8)

	secrets := []string{
		testEmail, testPassword, testPhone, testCode,
		"device-1", "otp-context-1", "otp-token-1", "id-token-1", "access-1",
	}
	for _, file := range files {
		contents, err := os.ReadFile(file)
		require.NoError(t, err)
		for _, secret := range secrets {
			require.NotContains(t, string(contents), secret, "%s", filepath.Base(file))
		}
	}
}
