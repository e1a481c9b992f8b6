package fetch

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"scrapebridge/internal/components/assert"
	"scrapebridge/internal/components/telemetry"
	"strings"
)

const (
	report_incontext_get  = "in-context.get"
	report_incontext_post = "in-context.post"
)

const formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// Page is an already navigated browser page that can evaluate a script.
//
// `fn` is the source of a javascript function taking one argument, `arg` is the JSON
// value passed as that argument and the return value is the JSON the function resolved
// to. Only serialized data crosses this boundary.
type Page interface {
	Evaluate(ctx context.Context, fn string, arg json.RawMessage) (json.RawMessage, error)
}

// Request is the descriptor sent into the page.
type Request struct {
	Method  string  `json:"method"`
	Url     string  `json:"url"`
	Body    *string `json:"body,omitempty"`
	Headers Header  `json:"headers"`
}

// Response is what the page sends back, Error is set when fetch itself rejected.
type Response struct {
	Status int    `json:"status"`
	Ok     bool   `json:"ok"`
	Text   string `json:"text"`
	Error  string `json:"error,omitempty"`
}

//go:embed page_fetch.js
var pageFetchScript string

// InContext is the Transport that runs requests inside a browser page with
// `credentials: 'include'`, so they carry the page's session.
type InContext struct {
	page Page
	tel  telemetry.API
}

func NewInContext(page Page, tel telemetry.API) *InContext {
	assert.NotNil(page)
	assert.NotNil(tel)
	return &InContext{
		page: page,
		tel:  telemetry.NewScopedAPI("fetch", tel),
	}
}

// Get sends `headers` as-is, no default content type is applied.
func (c *InContext) Get(ctx context.Context, url string, headers Header) (json.RawMessage, error) {
	c.tel.ReportDebug(report_incontext_get, url)

	result, err := c.do(ctx, Request{
		Method:  http.MethodGet,
		Url:     url,
		Headers: Header{}.With(headers),
	})
	if err != nil {
		c.tel.ReportWarning(report_incontext_get, err, url)
		return nil, err
	}
	return result, nil
}

// Post serializes `body` as JSON and defaults the content type to form-urlencoded
// unless `headers` overrides it.
func (c *InContext) Post(ctx context.Context, url string, body any, headers Header) (json.RawMessage, error) {
	c.tel.ReportDebug(report_incontext_post, url)

	encoded, err := encodeBody(body)
	if err != nil {
		return nil, &TransportError{Method: http.MethodPost, Url: url, Message: "encode body", Err: err}
	}
	req := Request{
		Method:  http.MethodPost,
		Url:     url,
		Headers: Header{"Content-Type": formContentType}.With(headers),
	}
	if encoded != nil {
		text := string(encoded)
		req.Body = &text
	}

	result, err := c.do(ctx, req)
	if err != nil {
		c.tel.ReportWarning(report_incontext_post, err, url)
		return nil, err
	}
	return result, nil
}

func (c *InContext) do(ctx context.Context, req Request) (json.RawMessage, error) {
	arg, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Url: req.Url, Message: "encode request", Err: err}
	}

	raw, err := c.page.Evaluate(ctx, pageFetchScript, arg)
	if err != nil {
		return nil, networkError(req.Method, req.Url, err)
	}

	var res Response
	err = json.Unmarshal(raw, &res)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Url: req.Url, Message: "decode page response", Err: err}
	}
	if res.Error != "" {
		return nil, networkError(req.Method, req.Url, errors.New(res.Error))
	}

	return Classify(req.Method, req.Url, res)
}

// Classify turns a page response into a transport result.
//  1. status 204 is null
//  2. a non-ok status is an error with a body excerpt
//  3. an empty or whitespace body is null
//  4. a body that is not JSON is an error with a body excerpt
//  5. anything else is the parsed JSON
func Classify(method, url string, res Response) (json.RawMessage, error) {
	if res.Status == http.StatusNoContent {
		return nil, nil
	}
	if !res.Ok {
		return nil, statusError(method, url, res.Status, res.Text)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, nil
	}
	if !json.Valid([]byte(res.Text)) {
		return nil, invalidJsonError(method, url, res.Status, res.Text)
	}
	return json.RawMessage(res.Text), nil
}
