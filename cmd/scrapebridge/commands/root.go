package commands

import (
	"context"
	"fmt"
	"scrapebridge/internal/components/browser"
	"scrapebridge/internal/components/chrono"
	"scrapebridge/internal/components/configutil"
	"scrapebridge/internal/components/serviceutil"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/fetch"
	"scrapebridge/internal/institutions/onezero"
	"scrapebridge/internal/keychain"
	"scrapebridge/internal/scrape"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const keychainNamespace = "onezero"

var rootCmd = &cobra.Command{
	Use:               "scrapebridge",
	Short:             "scrapebridge logs into a bank and scrapes its accounts.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

var (
	configPath *string
	verbose    *bool
	dumpHttp   *string
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "scrapebridge.json5", "The config file, a bare name is searched for in parent directories.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "Write redacted http traffic of the direct transport to this directory.")
}

// environment is what every command shares once setup ran.
type environment struct {
	cfg   Config
	tel   telemetry.API
	clock chrono.API
	otel  telemetry.Telemetry
}

var env environment

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := configutil.ReadWithDefaults(*configPath, defaultConfig())
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	telemetry.InitSlog(*verbose)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	tel := telemetry.New(cfg.Logger)
	if *dumpHttp != "" {
		cfg.DumpHttp = *dumpHttp
	}

	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	otelTel, err := telemetry.Setup(cmd.Context(), "scrapebridge", cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	if otelTel.MeterProvider != nil {
		telemetry.InstrumentPerfStats(cmd.Context(), tel)
	}

	env = environment{cfg: cfg, tel: tel, clock: clock, otel: otelTel}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := env.otel.Shutdown(ctx)
	if err != nil {
		env.tel.ReportWarning("cli.teardown", err)
	}
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		serviceutil.Fatal("scrapebridge failed", err)
	}
}

// newScraper builds the scraper described by the config, the returned function
// releases the browser if one was launched.
func newScraper(ctx context.Context) (*scrape.Scraper, func(), error) {
	cfg := env.cfg
	opts := scrape.Options{
		Direct: fetch.DirectOptions{
			Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.RequestsPerSecond,
			CloudflareBypass:  cfg.CloudflareBypass,
			DumpDir:           cfg.DumpHttp,
		},
		Clock: env.clock,
	}
	release := func() {}

	if cfg.Browser.Enabled {
		b, err := browser.Launch(ctx, browser.Options{
			Headless: cfg.Browser.Headless,
			ExecPath: cfg.Browser.ExecPath,
		}, env.tel)
		if err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}
		startUrl := cfg.Browser.StartUrl
		if startUrl == "" {
			startUrl = cfg.GraphqlUrl
		}
		page, err := b.NewPage(startUrl)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		opts.Page = page
		release = func() {
			page.Close()
			b.Close()
		}
	}

	scraper := scrape.NewScraper(
		onezero.Factory(onezero.Config{
			IdentityUrl: cfg.IdentityUrl,
			GraphqlUrl:  cfg.GraphqlUrl,
		}),
		opts,
		env.tel,
	)
	return scraper, release, nil
}

func openKeychain() (*keychain.Keychain, error) {
	return keychain.Open(env.cfg.Keychain, env.clock, env.tel)
}

// startDate is midnight `lookback_days` ago unless `flag` holds a YYYY-MM-DD date.
func startDate(flag string) (time.Time, error) {
	if flag == "" {
		return chrono.DaysAgo(env.clock, env.cfg.LookbackDays), nil
	}
	return time.ParseInLocation(time.DateOnly, flag, env.clock.Location())
}
