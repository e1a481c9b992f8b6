package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"scrapebridge/internal/components/assert"
	"scrapebridge/internal/components/restyutil"
	"scrapebridge/internal/components/telemetry"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_direct_get  = "direct.get"
	report_direct_post = "direct.post"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type DirectOptions struct {
	// BaseUrl is prepended to relative request urls.
	BaseUrl string
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
	// RequestsPerSecond is the maximum request rate, zero or less means unlimited.
	RequestsPerSecond float64
	UserAgent         string
	// CloudflareBypass wraps the http transport with a browser-like TLS fingerprint.
	CloudflareBypass bool
	// DumpDir, when set, receives a redacted copy of every request and response.
	DumpDir string
}

// Direct is the Transport that uses this process' own network stack.
type Direct struct {
	http *resty.Client
	tel  telemetry.API
}

func NewDirect(opts DirectOptions, tel telemetry.API) (*Direct, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("fetch", tel)

	httpClient := resty.New()
	if opts.BaseUrl != "" {
		httpClient.SetBaseURL(opts.BaseUrl)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient.SetHeader("User-Agent", userAgent)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	httpClient.SetTimeout(timeout)

	if opts.RequestsPerSecond > 0 {
		// max burst >= rate just means that no requests will be dropped
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)
	if opts.DumpDir != "" {
		out, err := restyutil.NewFilesystemOutput(opts.DumpDir, tel)
		if err != nil {
			return nil, fmt.Errorf("create dump directory: %w", err)
		}
		restyutil.Dump(httpClient, out)
	}

	return &Direct{http: httpClient, tel: tel}, nil
}

func (d *Direct) send(ctx context.Context, method, url string, body any, headers Header) (*resty.Response, error) {
	req := d.http.R().
		SetContext(ctx).
		SetHeaders(jsonHeaders().With(headers))

	if body != nil {
		encoded, err := encodeBody(body)
		if err != nil {
			return nil, &TransportError{Method: method, Url: url, Message: "encode body", Err: err}
		}
		req.SetBody(encoded)
	}

	res, err := req.Execute(method, url)
	if err != nil {
		return nil, networkError(method, url, err)
	}
	return res, nil
}

// Get fails with a TransportError unless the status is exactly 200.
func (d *Direct) Get(ctx context.Context, url string, headers Header) (json.RawMessage, error) {
	d.tel.ReportDebug(report_direct_get, url)

	res, err := d.send(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		d.tel.ReportBroken(report_direct_get, err, url)
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		err := unexpectedStatusError(http.MethodGet, url, res.StatusCode(), res.String())
		if err.Title != "" {
			d.tel.ReportWarning(report_direct_get, err, err.Title)
		} else {
			d.tel.ReportWarning(report_direct_get, err)
		}
		return nil, err
	}

	body := res.Body()
	if !json.Valid(body) {
		return nil, invalidJsonError(http.MethodGet, url, res.StatusCode(), string(body))
	}
	return json.RawMessage(body), nil
}

// Post forwards whatever JSON the server answers with regardless of the status,
// callers that care about the status must inspect the payload.
func (d *Direct) Post(ctx context.Context, url string, body any, headers Header) (json.RawMessage, error) {
	d.tel.ReportDebug(report_direct_post, url)

	res, err := d.send(ctx, http.MethodPost, url, body, headers)
	if err != nil {
		d.tel.ReportBroken(report_direct_post, err, url)
		return nil, err
	}

	resBody := res.Body()
	if !json.Valid(resBody) {
		return nil, invalidJsonError(http.MethodPost, url, res.StatusCode(), string(resBody))
	}
	return json.RawMessage(resBody), nil
}
