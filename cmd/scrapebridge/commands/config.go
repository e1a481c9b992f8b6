package commands

import (
	"fmt"
	"os"
	"scrapebridge/internal/auth"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/institutions/onezero"
	"strings"
)

type BrowserConfig struct {
	// Enabled runs graphql requests from inside a browser page.
	Enabled  bool   `json:"enabled"`
	Headless bool   `json:"headless"`
	StartUrl string `json:"start_url"`
	ExecPath string `json:"exec_path"`
}

type Config struct {
	IdentityUrl       string           `json:"identity_url"`
	GraphqlUrl        string           `json:"graphql_url"`
	Logger            string           `json:"logger"`
	Timezone          string           `json:"timezone"`
	LookbackDays      int              `json:"lookback_days"`
	TimeoutSeconds    int              `json:"timeout_seconds"`
	RequestsPerSecond float64          `json:"requests_per_second"`
	CloudflareBypass  bool             `json:"cloudflare_bypass"`
	DumpHttp          string           `json:"dump_http"`
	Keychain          string           `json:"keychain"`
	Schedule          string           `json:"schedule"`
	Browser           BrowserConfig    `json:"browser"`
	Telemetry         telemetry.Config `json:"telemetry"`
}

func defaultConfig() Config {
	return Config{
		IdentityUrl:       onezero.DefaultIdentityUrl,
		GraphqlUrl:        onezero.DefaultGraphqlUrl,
		Logger:            "slog",
		LookbackDays:      30,
		TimeoutSeconds:    30,
		RequestsPerSecond: 2,
		Keychain:          "scrapebridge.db",
		Schedule:          "0 6 * * *",
	}
}

const (
	envEmail    = "BANK_EMAIL"
	envPassword = "BANK_PASSWORD"
	envPhone    = "BANK_PHONE"
)

// credentialsFromEnv reads the credentials, `requirePhone` is set for the paths that
// send an sms.
func credentialsFromEnv(requirePhone bool) (auth.Credentials, error) {
	creds := auth.Credentials{
		Email:       strings.TrimSpace(os.Getenv(envEmail)),
		Password:    os.Getenv(envPassword),
		PhoneNumber: strings.TrimSpace(os.Getenv(envPhone)),
	}

	var missing []string
	if creds.Email == "" {
		missing = append(missing, envEmail)
	}
	if creds.Password == "" {
		missing = append(missing, envPassword)
	}
	if requirePhone && creds.PhoneNumber == "" {
		missing = append(missing, envPhone)
	}
	if len(missing) > 0 {
		return creds, fmt.Errorf("set the environment variables %s (a .env file works too)", strings.Join(missing, ", "))
	}
	return creds, nil
}
