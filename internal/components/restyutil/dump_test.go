package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"scrapebridge/internal/components/telemetry"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestRedactBody(t *testing.T) {
	out := redactBody(`{"kind":"sms","nested":[{"otpCode":"123456","channel":"SMS_OTP"}]}`)
	require.Contains(t, out, `"sms"`)
	require.Contains(t, out, `"SMS_OTP"`)
	require.NotContains(t, out, "123456")

	require.Equal(t, "", redactBody("  "))
	require.Equal(t, "<7 bytes of non-json body>", redactBody("a=b&c=d"))
}

func TestRedactIdentityBodies(t *testing.T) {
	bodies := []string{
		`{"factorValue":"+972500000000","deviceToken":"device-1","otpChannel":"SMS_OTP"}`,
		`{"otpContext":"ctx-1","otpCode":"123456"}`,
		`{"otpSmsToken":"otp-token-1","email":"user@bank.example","password":"hunter2","pinCode":""}`,
		`{"id_token":"id-token-1","pass":"hunter2"}`,
		`{"resultData":{"accessToken":"access-1"}}`,
		`{"username":"user","Phone":"+972500000000"}`,
	}
	secrets := []string{
		"+972500000000", "device-1", "ctx-1", "123456", "otp-token-1",
		"user@bank.example", "hunter2", "id-token-1", "access-1", `"user"`,
	}

	for _, body := range bodies {
		out := redactBody(body)
		for _, secret := range secrets {
			require.NotContains(t, out, secret, "body %s", body)
		}
	}
	require.Contains(t, redactBody(bodies[0]), `"factorValue": "[redacted]"`)
}

func TestFormatHeaders(t *testing.T) {
	out := formatHeaders(http.Header{
		"Authorization": {"Bearer secret"},
		"Accept":        {"application/json"},
	})
	require.Equal(t, "Accept: application/json\nAuthorization: [redacted]", out)
}

func TestDump(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultData":{"accessToken":"tok-1"}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	out, err := NewFilesystemOutput(filepath.Join(dir, "http"), telemetry.NoopAPI{})
	require.NoError(t, err)

	client := resty.New()
	Dump(client, out)

	_, err = client.R().
		SetHeader("Authorization", "Bearer tok-0").
		SetBody([]byte(`{"password":"hunter2"}`)).
		Post(srv.URL + "/sessions/token")
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dir, "http", "*-001-post.txt"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	contents, err := os.ReadFile(files[0])
	require.NoError(t, err)
	text := string(contents)
	require.Contains(t, text, "POST "+srv.URL+"/sessions/token")
	require.Contains(t, text, "200")
	require.NotContains(t, text, "hunter2")
	require.NotContains(t, text, "tok-0")
	require.NotContains(t, text, "tok-1")
}
