package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"scrapebridge/internal/scrape"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func writeJson(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBalance(balance *float64) string {
	if balance == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *balance)
}

// writeAccounts renders one summary table followed by one table of transactions
// per account.
func writeAccounts(w io.Writer, accounts []scrape.Account) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleRounded)
	summary.SetTitle("Accounts")
	summary.AppendHeader(table.Row{"Account", "Balance", "Transactions"})
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	for _, acc := range accounts {
		summary.AppendRow(table.Row{acc.AccountNumber, formatBalance(acc.Balance), len(acc.Txns)})
	}
	summary.Render()

	for _, acc := range accounts {
		if len(acc.Txns) == 0 {
			continue
		}
		txns := table.NewWriter()
		txns.SetOutputMirror(w)
		txns.SetStyle(table.StyleRounded)
		txns.SetTitle(acc.AccountNumber)
		txns.AppendHeader(table.Row{"Date", "Description", "Amount", "Currency", "Status"})
		txns.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
		})
		for _, t := range acc.Txns {
			txns.AppendRow(table.Row{
				t.Date.Format(time.DateOnly),
				t.Description,
				fmt.Sprintf("%.2f", t.ChargedAmount),
				t.OriginalCurrency,
				t.Status,
			})
		}
		txns.Render()
	}
}
