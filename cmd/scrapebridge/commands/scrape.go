package commands

import (
	"errors"
	"fmt"
	"os"
	"scrapebridge/internal/keychain"
	"scrapebridge/internal/scrape"

	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Log in and print every account with its transactions.",
	Long: `Log in and print every account with its transactions.

The long-term token is taken from --token, then from the keychain. Without one
an OTP is sent to the phone in BANK_PHONE and read from the terminal.`,
	RunE: runScrape,
}

var (
	scrapeToken    *string
	scrapeStart    *string
	scrapeJson     *bool
	scrapeNoPrompt *bool
)

func init() {
	scrapeToken = scrapeCmd.Flags().String("token", "", "A long-term token, overrides the keychain.")
	scrapeStart = scrapeCmd.Flags().String("start", "", "Only collect transactions from this date on (YYYY-MM-DD).")
	scrapeJson = scrapeCmd.Flags().Bool("json", false, "Print the raw scrape result as json.")
	scrapeNoPrompt = scrapeCmd.Flags().Bool("no-prompt", false, "Fail instead of asking for an OTP.")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	start, err := startDate(*scrapeStart)
	if err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}

	token := *scrapeToken
	if token == "" {
		token, err = storedToken(cmd)
		if err != nil {
			return err
		}
	}

	creds, err := credentialsFromEnv(token == "")
	if err != nil {
		return err
	}

	opts := scrape.ScrapeOptions{
		Credentials:      creds,
		OtpLongTermToken: token,
		StartDate:        start,
	}
	if token == "" && !*scrapeNoPrompt {
		opts.OtpCodeRetriever = otpPrompt("Enter the OTP code sent to your phone: ")
	}

	scraper, release, err := newScraper(ctx)
	if err != nil {
		return err
	}
	defer release()

	result := scraper.Scrape(ctx, opts)
	if *scrapeJson {
		err = writeJson(cmd.OutOrStdout(), result)
		if err != nil {
			return err
		}
	} else if result.Success {
		writeAccounts(cmd.OutOrStdout(), result.Accounts)
	}

	if !result.Success {
		return fmt.Errorf("scrape failed (%s): %s", result.ErrorType, result.ErrorMessage)
	}
	return nil
}

// storedToken looks up the token minted for BANK_EMAIL, a missing keychain entry
// is not an error.
func storedToken(cmd *cobra.Command) (string, error) {
	creds, _ := credentialsFromEnv(false)
	if creds.Identifier() == "" {
		return "", nil
	}
	if _, err := os.Stat(env.cfg.Keychain); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	kc, err := openKeychain()
	if err != nil {
		return "", fmt.Errorf("open keychain: %w", err)
	}
	defer kc.Close()

	token, err := kc.Get(cmd.Context(), keychainNamespace, creds.Identifier())
	if errors.Is(err, keychain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read keychain: %w", err)
	}
	return token, nil
}
