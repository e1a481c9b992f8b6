// Package fetch contains the two transports every institution adapter talks through.
// Direct issues requests from this process' own network stack, InContext issues them
// from inside an authenticated browser page so the page's cookies ride along.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/textproto"
)

const jsonContentType = "application/json"

// Transport is the capability both transports share, a nil json.RawMessage with a nil
// error means the server answered with no content (JSON null).
type Transport interface {
	Get(ctx context.Context, url string, headers Header) (json.RawMessage, error)
	Post(ctx context.Context, url string, body any, headers Header) (json.RawMessage, error)
}

// Header is a set of request headers, keys are compared case-insensitively.
type Header map[string]string

// With returns a copy of h with every key in `extra` set on top, keys are canonicalized
// so `content-type` overrides `Content-Type`.
func (h Header) With(extra Header) Header {
	out := make(Header, len(h)+len(extra))
	for k, v := range h {
		out[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	for k, v := range extra {
		out[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	return out
}

// Get looks up a header case-insensitively.
func (h Header) Get(key string) string {
	key = textproto.CanonicalMIMEHeaderKey(key)
	for k, v := range h {
		if textproto.CanonicalMIMEHeaderKey(k) == key {
			return v
		}
	}
	return ""
}

func jsonHeaders() Header {
	return Header{
		"Accept":       jsonContentType,
		"Content-Type": jsonContentType,
	}
}

// IsNull reports whether a transport result is the null outcome.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals a transport result into T, a null result yields (nil, nil).
func Decode[T any](raw json.RawMessage) (*T, error) {
	if IsNull(raw) {
		return nil, nil
	}
	var out T
	err := json.Unmarshal(raw, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// encodeBody serializes a request body, strings and byte slices are sent as-is and
// everything else is JSON encoded.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(body)
	}
}
