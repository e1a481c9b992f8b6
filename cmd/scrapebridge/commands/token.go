package commands

import (
	"fmt"
	"scrapebridge/internal/auth"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage long-term two-factor tokens.",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Send an OTP to BANK_PHONE and exchange it for a long-term token.",
	RunE:  runTokenMint,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the identities with a stored token.",
	RunE:  runTokenList,
}

var tokenForgetCmd = &cobra.Command{
	Use:   "forget <email>",
	Short: "Remove the stored token of an identity.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenForget,
}

var (
	tokenPrint  *bool
	tokenNoSave *bool
)

func init() {
	tokenPrint = tokenMintCmd.Flags().Bool("print", false, "Print the minted token to stdout.")
	tokenNoSave = tokenMintCmd.Flags().Bool("no-save", false, "Do not store the minted token in the keychain.")

	tokenCmd.AddCommand(tokenMintCmd, tokenListCmd, tokenForgetCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenMint(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	creds, err := credentialsFromEnv(true)
	if err != nil {
		return err
	}

	scraper, release, err := newScraper(ctx)
	if err != nil {
		return err
	}
	defer release()

	trigger := scraper.TriggerTwoFactorAuth(ctx, creds.PhoneNumber)
	if !trigger.Success {
		return fmt.Errorf("trigger two-factor auth: %s", trigger.ErrorMessage)
	}

	var retriever auth.OtpRetriever = otpPrompt("Enter the OTP code sent to your phone: ")
	code, err := retriever.RetrieveOtp(ctx)
	if err != nil {
		return fmt.Errorf("read otp: %w", err)
	}

	minted := scraper.GetLongTermTwoFactorToken(ctx, code)
	if !minted.Success {
		return fmt.Errorf("exchange otp: %s", minted.ErrorMessage)
	}

	if !*tokenNoSave {
		kc, err := openKeychain()
		if err != nil {
			return fmt.Errorf("open keychain: %w", err)
		}
		defer kc.Close()

		err = kc.Put(ctx, keychainNamespace, creds.Identifier(), minted.LongTermTwoFactorAuthToken)
		if err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "stored long-term token for %s\n", creds.Identifier())
	}
	if *tokenPrint {
		fmt.Fprintln(cmd.OutOrStdout(), minted.LongTermTwoFactorAuthToken)
	}
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	kc, err := openKeychain()
	if err != nil {
		return fmt.Errorf("open keychain: %w", err)
	}
	defer kc.Close()

	entries, err := kc.List(cmd.Context(), keychainNamespace)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Identity", "Minted"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Id, e.CreatedAt.In(env.clock.Location()).Format(time.DateTime)})
	}
	t.Render()
	return nil
}

func runTokenForget(cmd *cobra.Command, args []string) error {
	kc, err := openKeychain()
	if err != nil {
		return fmt.Errorf("open keychain: %w", err)
	}
	defer kc.Close()
	return kc.Delete(cmd.Context(), keychainNamespace, args[0])
}
