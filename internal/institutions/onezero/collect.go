package onezero

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"scrapebridge/internal/graphql"
	"scrapebridge/internal/scrape"
	"strconv"
	"strings"
	"time"
)

//go:embed queries/get_customer.graphql
var getCustomerQuery string

//go:embed queries/get_movements.graphql
var getMovementsQuery string

const movementsPageSize = 50

// maxMovementPages stops a misbehaving cursor from paging forever.
const maxMovementPages = 200

type customerResponse struct {
	Customer []struct {
		CustomerId string `json:"customerId"`
		Portfolios []struct {
			PortfolioId  string `json:"portfolioId"`
			PortfolioNum string `json:"portfolioNum"`
			Accounts     []struct {
				AccountId string `json:"accountId"`
			} `json:"accounts"`
		} `json:"portfolios"`
	} `json:"customer"`
}

type movement struct {
	MovementId        string      `json:"movementId"`
	MovementTimestamp string      `json:"movementTimestamp"`
	ValueDate         string      `json:"valueDate"`
	MovementAmount    json.Number `json:"movementAmount"`
	MovementCurrency  string      `json:"movementCurrency"`
	CreditDebit       string      `json:"creditDebit"`
	Description       string      `json:"description"`
	RunningBalance    json.Number `json:"runningBalance"`
}

type movementsResponse struct {
	Movements struct {
		Movements  []movement `json:"movements"`
		Pagination struct {
			HasMore bool   `json:"hasMore"`
			Cursor  string `json:"cursor"`
		} `json:"pagination"`
	} `json:"movements"`
}

type movementsPagination struct {
	Cursor *string `json:"cursor"`
	Limit  int     `json:"limit"`
}

type movementsVariables struct {
	PortfolioId string              `json:"portfolioId"`
	AccountId   string              `json:"accountId"`
	Language    string              `json:"language"`
	Pagination  movementsPagination `json:"pagination"`
}

// Collect returns one account per portfolio with the movements since the session's
// start date, newest first as OneZero returns them.
func (b *Bank) Collect(ctx context.Context, session *scrape.Session) ([]scrape.Account, error) {
	if b.accessToken == "" {
		return nil, errors.New("onezero: collect called before login")
	}
	client := b.gqlClient()

	var customer customerResponse
	err := graphql.Query(ctx, client, getCustomerQuery, nil, &customer)
	if err != nil {
		b.tel.ReportBroken(report_onezero_portfolios, fmt.Errorf("get customer: %w", err))
		return nil, err
	}

	var accounts []scrape.Account
	for _, c := range customer.Customer {
		for _, portfolio := range c.Portfolios {
			if len(portfolio.Accounts) == 0 {
				b.tel.ReportWarning(report_onezero_portfolios, "portfolio without accounts", portfolio.PortfolioNum)
				continue
			}
			account, err := b.collectPortfolio(
				ctx,
				client,
				portfolio.PortfolioId,
				portfolio.PortfolioNum,
				portfolio.Accounts[0].AccountId,
				session.StartDate,
			)
			if err != nil {
				b.tel.ReportBroken(report_onezero_collect, fmt.Errorf("portfolio %s: %w", portfolio.PortfolioNum, err))
				return nil, err
			}
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func (b *Bank) collectPortfolio(
	ctx context.Context,
	client *graphql.Client,
	portfolioId,
	portfolioNum,
	accountId string,
	startDate time.Time,
) (scrape.Account, error) {
	account := scrape.Account{AccountNumber: portfolioNum, Txns: []scrape.Transaction{}}

	var cursor *string
	for page := 0; page < maxMovementPages; page++ {
		var res movementsResponse
		err := graphql.Query(ctx, client, getMovementsQuery, movementsVariables{
			PortfolioId: portfolioId,
			AccountId:   accountId,
			Language:    "HEBREW",
			Pagination:  movementsPagination{Cursor: cursor, Limit: movementsPageSize},
		}, &res)
		if err != nil {
			return account, err
		}

		reachedStart := false
		for _, m := range res.Movements.Movements {
			txn, err := toTransaction(m)
			if err != nil {
				b.tel.ReportWarning(report_onezero_movements, err, m.MovementId)
				continue
			}
			if account.Balance == nil && m.RunningBalance != "" {
				balance, err := m.RunningBalance.Float64()
				if err == nil {
					account.Balance = &balance
				}
			}
			if txn.Date.Before(startDate) {
				reachedStart = true
				continue
			}
			account.Txns = append(account.Txns, txn)
		}

		pagination := res.Movements.Pagination
		if reachedStart || !pagination.HasMore || pagination.Cursor == "" {
			return account, nil
		}
		next := pagination.Cursor
		cursor = &next
	}

	b.tel.ReportWarning(report_onezero_movements, "stopped paging movements", portfolioNum)
	return account, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, value)
}

func toTransaction(m movement) (scrape.Transaction, error) {
	date, err := parseTimestamp(m.MovementTimestamp)
	if err != nil {
		return scrape.Transaction{}, fmt.Errorf("movement timestamp: %w", err)
	}
	processed := date
	if m.ValueDate != "" {
		processed, err = parseTimestamp(m.ValueDate)
		if err != nil {
			return scrape.Transaction{}, fmt.Errorf("value date: %w", err)
		}
	}

	amount, err := strconv.ParseFloat(m.MovementAmount.String(), 64)
	if err != nil {
		return scrape.Transaction{}, fmt.Errorf("movement amount: %w", err)
	}
	if strings.EqualFold(m.CreditDebit, "DEBIT") {
		amount = -amount
	}

	return scrape.Transaction{
		Identifier:       m.MovementId,
		Date:             date,
		ProcessedDate:    processed,
		OriginalAmount:   amount,
		OriginalCurrency: m.MovementCurrency,
		ChargedAmount:    amount,
		Description:      m.Description,
		Status:           scrape.TransactionCompleted,
	}, nil
}
