package restyutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

const redacted = "[redacted]"

var secretHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// secretKeys are substrings of json keys whose values are never written out.
var secretKeys = []string{"token", "password", "otp", "code", "secret"}

// identityKeys are json keys (lowercased) that hold credentials or personal
// identifiers without looking like secrets.
var identityKeys = map[string]bool{
	"pass":        true,
	"passwd":      true,
	"pin":         true,
	"email":       true,
	"username":    true,
	"phone":       true,
	"phonenumber": true,
	"factorvalue": true,
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	if identityKeys[lower] {
		return true
	}
	for _, s := range secretKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func redactValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, inner := range v {
			if isSecretKey(k) {
				v[k] = redacted
				continue
			}
			v[k] = redactValue(inner)
		}
		return v
	case []any:
		for i, inner := range v {
			v[i] = redactValue(inner)
		}
		return v
	default:
		return v
	}
}

// redactBody blanks secret fields of a json body, anything that is not json is
// reduced to its length.
func redactBody(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	var parsed any
	err := json.Unmarshal([]byte(body), &parsed)
	if err != nil {
		return fmt.Sprintf("<%d bytes of non-json body>", len(body))
	}
	out, err := json.MarshalIndent(redactValue(parsed), "", "  ")
	if err != nil {
		return fmt.Sprintf("<%d bytes>", len(body))
	}
	return string(out)
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			if secretHeaders[http.CanonicalHeaderKey(k)] {
				v = redacted
			}
			out.WriteString(fmt.Sprintf("%s: %s\n", k, v))
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func readRequestBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	defer body.Close()
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(readBody)
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: response headers in ("Key: Value" format)
// 7: response body
const messageTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s

%s

%s
`

func formatHttpMessage(res *resty.Response) string {
	var requestHeaders, requestBody string
	if raw := res.Request.RawRequest; raw != nil {
		requestHeaders = formatHeaders(raw.Header)
		requestBody = readRequestBody(raw)
	}

	return fmt.Sprintf(
		messageTemplate,

		res.Request.Method, res.Request.URL,
		requestHeaders,
		redactBody(requestBody),

		strconv.Itoa(res.StatusCode()),
		formatHeaders(res.Header()),
		redactBody(res.String()),
	)
}
