package commands

import (
	"context"
	"fmt"
	"scrapebridge/internal/components/chrono"
	"scrapebridge/internal/scrape"
	"sync"

	"github.com/spf13/cobra"
)

const (
	report_daemon_scrape   = "daemon.scrape"
	report_daemon_accounts = "daemon.accounts"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Scrape on the configured schedule using the stored long-term token.",
	RunE:  runDaemon,
}

var (
	daemonSchedule *string
	daemonNow      *bool
)

func init() {
	daemonSchedule = daemonCmd.Flags().String("schedule", "", "A cron spec overriding the config.")
	daemonNow = daemonCmd.Flags().Bool("now", false, "Also scrape once on startup.")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	schedule := env.cfg.Schedule
	if *daemonSchedule != "" {
		schedule = *daemonSchedule
	}

	token, err := storedToken(cmd)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("no long-term token stored, run `scrapebridge token mint` first")
	}
	creds, err := credentialsFromEnv(false)
	if err != nil {
		return err
	}

	// scrapes never overlap, a run that is still going skips the next tick.
	var running sync.Mutex
	job := func() {
		if !running.TryLock() {
			env.tel.ReportWarning(report_daemon_scrape, "previous scrape still running")
			return
		}
		defer running.Unlock()

		result := daemonScrape(ctx, scrape.ScrapeOptions{
			Credentials:      creds,
			OtpLongTermToken: token,
			StartDate:        chrono.DaysAgo(env.clock, env.cfg.LookbackDays),
		})
		if !result.Success {
			env.tel.ReportBroken(report_daemon_scrape, result.ErrorType, result.ErrorMessage)
			return
		}
		env.tel.ReportCount(report_daemon_accounts, int64(len(result.Accounts)))
		err := writeJson(cmd.OutOrStdout(), result)
		if err != nil {
			env.tel.ReportWarning(report_daemon_scrape, err)
		}
	}

	cron := chrono.NewStandardCron(env.tel, env.clock)
	defer cron.Stop()
	return runSchedule(ctx, cron, schedule, *daemonNow, job)
}

// runSchedule registers `job` and blocks until ctx is done. The startup run
// happens on the calling goroutine, so it has finished by the time this returns.
func runSchedule(ctx context.Context, cron chrono.CronAPI, schedule string, now bool, job func()) error {
	err := cron.Cron(schedule, job)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	env.tel.ReportDebug(report_daemon_scrape, "scheduled", schedule)

	if now {
		job()
	}

	<-ctx.Done()
	return nil
}

func daemonScrape(ctx context.Context, opts scrape.ScrapeOptions) scrape.ScrapeResult {
	scraper, release, err := newScraper(ctx)
	if err != nil {
		return scrape.ScrapeResult{ErrorType: scrape.ErrorTypeConfiguration, ErrorMessage: err.Error()}
	}
	defer release()
	return scraper.Scrape(ctx, opts)
}
