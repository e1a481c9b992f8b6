package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/fetch"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	result json.RawMessage
	err    error

	url     string
	body    []byte
	headers fetch.Header
}

func (p *fakePoster) Post(ctx context.Context, url string, body any, headers fetch.Header) (json.RawMessage, error) {
	p.url = url
	p.headers = headers
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	p.body = encoded
	return p.result, p.err
}

func TestFirstErrorWins(t *testing.T) {
	poster := &fakePoster{result: json.RawMessage(`{"errors":[{"message":"E1"},{"message":"E2"}]}`)}
	client := NewClient(poster, "https://bank.example/graphql", nil, telemetry.NoopAPI{})

	var out map[string]any
	err := Query(context.Background(), client, "query { me }", nil, &out)

	var gqlErr *GraphqlError
	require.ErrorAs(t, err, &gqlErr)
	require.Equal(t, "E1", err.Error())
	require.Equal(t, "E1", gqlErr.Message)
}

func TestPayloadShape(t *testing.T) {
	poster := &fakePoster{result: json.RawMessage(`{"data":{"customer":{"id":"c1"}}}`)}
	client := NewClient(
		poster,
		"https://bank.example/graphql",
		fetch.Header{"Authorization": "Bearer t"},
		telemetry.NoopAPI{},
	)

	var out struct {
		Customer struct {
			Id string `json:"id"`
		} `json:"customer"`
	}
	err := Query(context.Background(), client, "query { customer { id } }", nil, &out)
	require.NoError(t, err)
	require.Equal(t, "c1", out.Customer.Id)

	require.Equal(t, "https://bank.example/graphql", poster.url)
	require.Equal(t, "Bearer t", poster.headers.Get("authorization"))
	require.JSONEq(t, `{"operationName":null,"query":"query { customer { id } }","variables":{}}`, string(poster.body))

	scoped := client.WithHeaders(fetch.Header{"x-extra": "1"})
	_, err = scoped.Raw(context.Background(), "query { a }", map[string]int{"n": 2})
	require.NoError(t, err)
	require.Equal(t, "1", poster.headers.Get("X-Extra"))
	require.Equal(t, "Bearer t", poster.headers.Get("Authorization"))
	require.JSONEq(t, `{"operationName":null,"query":"query { a }","variables":{"n":2}}`, string(poster.body))
}

func TestTransportErrorSurfacesUnchanged(t *testing.T) {
	transportErr := &fetch.TransportError{Status: 502, Message: "HTTP 502: bad gateway"}
	poster := &fakePoster{err: transportErr}
	client := NewClient(poster, "https://bank.example/graphql", nil, telemetry.NoopAPI{})

	_, err := client.Raw(context.Background(), "query { a }", nil)
	require.ErrorIs(t, err, transportErr)

	var gqlErr *GraphqlError
	require.False(t, errors.As(err, &gqlErr))
}

func TestNullResponse(t *testing.T) {
	client := NewClient(&fakePoster{}, "https://bank.example/graphql", nil, telemetry.NoopAPI{})

	_, err := client.Raw(context.Background(), "query { a }", nil)
	var gqlErr *GraphqlError
	require.ErrorAs(t, err, &gqlErr)
}

func TestMissingData(t *testing.T) {
	for _, body := range []string{`{"data":null}`, `{}`, `{"errors":[]}`, `{"message":"Unauthorized"}`} {
		poster := &fakePoster{result: json.RawMessage(body)}
		client := NewClient(poster, "https://bank.example/graphql", nil, telemetry.NoopAPI{})

		out := struct{ A int }{A: 7}
		err := Query(context.Background(), client, "query { a }", nil, &out)
		var gqlErr *GraphqlError
		require.ErrorAs(t, err, &gqlErr, body)
		require.Equal(t, "empty graphql response", gqlErr.Message)
		require.Equal(t, 7, out.A)
	}
}

func TestRejectedOverDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Unauthorized"}`))
	}))
	defer srv.Close()

	direct, err := fetch.NewDirect(fetch.DirectOptions{}, telemetry.NoopAPI{})
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(direct, srv.URL, nil, telemetry.NoopAPI{})

	var out struct {
		Customers []string `json:"customers"`
	}
	err = Query(context.Background(), client, "query { customers }", nil, &out)
	var gqlErr *GraphqlError
	require.ErrorAs(t, err, &gqlErr)
	require.Empty(t, out.Customers)
}

// the same query behaves identically over both transports
func TestOverBothTransports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"operationName":null,"query":"query { a }","variables":{}}`, string(body))
		w.Write([]byte(`{"data":{"a":1},"errors":[]}`))
	}))
	defer srv.Close()

	direct, err := fetch.NewDirect(fetch.DirectOptions{}, telemetry.NoopAPI{})
	if err != nil {
		t.Fatal(err)
	}
	inContext := fetch.NewInContext(pageFunc(func(ctx context.Context, fn string, arg json.RawMessage) (json.RawMessage, error) {
		var req fetch.Request
		if err := json.Unmarshal(arg, &req); err != nil {
			return nil, err
		}
		res, err := direct.Post(ctx, srv.URL, *req.Body, nil)
		if err != nil {
			return nil, err
		}
		return json.Marshal(fetch.Response{Status: 200, Ok: true, Text: string(res)})
	}), telemetry.NoopAPI{})

	for _, poster := range []Poster{direct, inContext} {
		client := NewClient(poster, srv.URL, nil, telemetry.NoopAPI{})
		var out struct {
			A int `json:"a"`
		}
		err := Query(context.Background(), client, "query { a }", nil, &out)
		require.NoError(t, err)
		require.Equal(t, 1, out.A)
	}
}

type pageFunc func(ctx context.Context, fn string, arg json.RawMessage) (json.RawMessage, error)

func (f pageFunc) Evaluate(ctx context.Context, fn string, arg json.RawMessage) (json.RawMessage, error) {
	return f(ctx, fn, arg)
}
