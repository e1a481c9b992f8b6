// Package graphql sends `{operationName, query, variables}` payloads over any
// fetch transport and unwraps the `{data, errors}` envelope.
package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"scrapebridge/internal/components/assert"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/fetch"
)

const report_client_query = "client.query"

// Poster is the part of a fetch.Transport the graphql layer needs.
type Poster interface {
	Post(ctx context.Context, url string, body any, headers fetch.Header) (json.RawMessage, error)
}

// GraphqlError carries the message of the first error the server reported.
type GraphqlError struct {
	Message string
}

func (e *GraphqlError) Error() string {
	return e.Message
}

type request struct {
	OperationName *string `json:"operationName"`
	Query         string  `json:"query"`
	Variables     any     `json:"variables"`
}

type responseError struct {
	Message string `json:"message"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []responseError `json:"errors"`
}

type Client struct {
	poster  Poster
	url     string
	headers fetch.Header
	tel     telemetry.API
}

// NewClient creates a client that posts every query to `url` with `headers`.
func NewClient(poster Poster, url string, headers fetch.Header, tel telemetry.API) *Client {
	assert.NotNil(poster)
	assert.NotNil(tel)
	assert.NotEmptyStr(url)
	return &Client{
		poster:  poster,
		url:     url,
		headers: headers,
		tel:     telemetry.NewScopedAPI("graphql", tel),
	}
}

// WithHeaders returns a client that sends `extra` on top of the current headers.
func (c *Client) WithHeaders(extra fetch.Header) *Client {
	return &Client{
		poster:  c.poster,
		url:     c.url,
		headers: c.headers.With(extra),
		tel:     c.tel,
	}
}

// Raw sends the query and returns the undecoded `data` member, it fails with
// a GraphqlError holding only the first reported error, or when there is no data.
func (c *Client) Raw(ctx context.Context, query string, variables any) (json.RawMessage, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	c.tel.ReportDebug(report_client_query, c.url)

	result, err := c.poster.Post(ctx, c.url, request{
		OperationName: nil,
		Query:         query,
		Variables:     variables,
	}, c.headers)
	if err != nil {
		return nil, err
	}
	if fetch.IsNull(result) {
		return nil, &GraphqlError{Message: "empty graphql response"}
	}

	var res response
	err = json.Unmarshal(result, &res)
	if err != nil {
		c.tel.ReportBroken(report_client_query, fmt.Errorf("json unmarshal: %w", err))
		return nil, &GraphqlError{Message: fmt.Sprintf("decode graphql response: %s", err.Error())}
	}
	if len(res.Errors) > 0 {
		c.tel.ReportWarning(report_client_query, res.Errors[0].Message, len(res.Errors))
		return nil, &GraphqlError{Message: res.Errors[0].Message}
	}
	// a post is not status checked, so a rejected request shows up here as a
	// payload with neither data nor errors.
	if fetch.IsNull(res.Data) {
		c.tel.ReportWarning(report_client_query, "response without data", c.url)
		return nil, &GraphqlError{Message: "empty graphql response"}
	}
	return res.Data, nil
}

// Query sends the query and decodes the `data` member into `output`.
func Query[O any](ctx context.Context, client *Client, query string, variables any, output *O) error {
	data, err := client.Raw(ctx, query, variables)
	if err != nil {
		return err
	}
	err = json.Unmarshal(data, output)
	if err != nil {
		client.tel.ReportBroken(report_client_query, fmt.Errorf("json unmarshal data: %w", err))
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}
