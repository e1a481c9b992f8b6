package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"scrapebridge/internal/components/telemetry"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirect(t testing.TB, handler http.HandlerFunc) *Direct {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	direct, err := NewDirect(DirectOptions{BaseUrl: srv.URL}, telemetry.NoopAPI{})
	if err != nil {
		t.Fatal(err)
	}
	return direct
}

func TestDirectGetStrictStatus(t *testing.T) {
	statuses := []int{
		http.StatusCreated,
		http.StatusAccepted,
		http.StatusNoContent,
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusInternalServerError,
	}

	for _, status := range statuses {
		direct := newTestDirect(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			if status != http.StatusNoContent {
				w.Write([]byte(`{"a":1}`))
			}
		})

		_, err := direct.Get(context.Background(), "/thing", nil)
		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr, "status %d", status)
		require.Equal(t, status, transportErr.Status)
	}
}

func TestDirectGetOk(t *testing.T) {
	direct := newTestDirect(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		w.Write([]byte(`{"a":1}`))
	})

	result, err := direct.Get(context.Background(), "/thing", Header{"x-extra": "yes"})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(result))

	var out struct {
		A int `json:"a"`
	}
	require.NoError(t, json.Unmarshal(result, &out))
	require.Equal(t, 1, out.A)
}

func TestDirectHeaderOverride(t *testing.T) {
	direct := newTestDirect(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`[]`))
	})

	_, err := direct.Get(context.Background(), "/thing", Header{"accept": "text/plain"})
	require.NoError(t, err)
}

func TestDirectGetInvalidJson(t *testing.T) {
	direct := newTestDirect(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>nope</html>`))
	})

	_, err := direct.Get(context.Background(), "/thing", nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "<html>nope</html>", transportErr.Excerpt)
	require.Empty(t, transportErr.Title)
}

func TestDirectChallengePageTitle(t *testing.T) {
	direct := newTestDirect(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<!DOCTYPE html><html><head><title> Just a moment... </title></head><body></body></html>`))
	})

	_, err := direct.Get(context.Background(), "/thing", nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusForbidden, transportErr.Status)
	require.Equal(t, "Just a moment...", transportErr.Title)
}

func TestHtmlTitle(t *testing.T) {
	require.Equal(t, "", htmlTitle(`{"a":1}`))
	require.Equal(t, "", htmlTitle(""))
	require.Equal(t, "Blocked", htmlTitle("  <html><title>Blocked</title></html>"))
}

func TestDirectPostIgnoresStatus(t *testing.T) {
	direct := newTestDirect(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"email":"a@b.c"}`, string(body))

		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	})

	result, err := direct.Post(
		context.Background(),
		"/login",
		map[string]string{"email": "a@b.c"},
		nil,
	)
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"bad"}`, string(result))
}

func TestDirectNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	direct, err := NewDirect(DirectOptions{}, telemetry.NoopAPI{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = direct.Post(context.Background(), url, map[string]any{}, nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 0, transportErr.Status)
	require.NotNil(t, errors.Unwrap(transportErr))
}

func TestDirectCancellation(t *testing.T) {
	direct := newTestDirect(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := direct.Get(ctx, "/slow", nil)
	require.ErrorIs(t, err, context.Canceled)
}
