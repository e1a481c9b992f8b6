// Package keychain persists long-term tokens on behalf of the CLI, the scraping core
// never stores a token itself.
package keychain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"scrapebridge/internal/components/chrono"
	"scrapebridge/internal/components/telemetry"
	"scrapebridge/internal/keychain/db"
	"time"

	_ "modernc.org/sqlite"
)

const (
	report_keychain_get = "keychain.get"
	report_keychain_put = "keychain.put"
)

var ErrNotFound = errors.New("long-term token not found")

type Entry struct {
	Namespace string
	Id        string
	CreatedAt time.Time
}

type Keychain struct {
	db    *sql.DB
	qry   *db.Queries
	clock chrono.API
	tel   telemetry.API
}

// Open opens (creating if needed) the sqlite database at `path`, ":memory:" works for
// tests.
func Open(path string, clock chrono.API, tel telemetry.API) (*Keychain, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every connection to :memory: is its own database
		database.SetMaxOpenConns(1)
	}
	_, err = database.Exec(db.Schema)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Keychain{
		db:    database,
		qry:   db.New(database),
		clock: clock,
		tel:   telemetry.NewScopedAPI("keychain", tel),
	}, nil
}

func (k *Keychain) Close() error {
	return k.db.Close()
}

// Put stores `token` under (namespace, id), replacing any previous one.
func (k *Keychain) Put(ctx context.Context, namespace, id, token string) error {
	err := k.qry.PutToken(ctx, db.PutTokenParams{
		Namespace: namespace,
		ID:        id,
		Token:     token,
		CreatedAt: k.clock.Now().Unix(),
	})
	if err != nil {
		k.tel.ReportBroken(report_keychain_put, err, namespace)
		return err
	}
	return nil
}

func (k *Keychain) Get(ctx context.Context, namespace, id string) (string, error) {
	row, err := k.qry.GetToken(ctx, db.GetTokenParams{Namespace: namespace, ID: id})
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		k.tel.ReportBroken(report_keychain_get, err, namespace)
		return "", err
	}
	return row.Token, nil
}

func (k *Keychain) Delete(ctx context.Context, namespace, id string) error {
	return k.qry.DeleteToken(ctx, db.DeleteTokenParams{Namespace: namespace, ID: id})
}

// List returns the entries of a namespace without their tokens.
func (k *Keychain) List(ctx context.Context, namespace string) ([]Entry, error) {
	rows, err := k.qry.ListTokens(ctx, namespace)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{
			Namespace: r.Namespace,
			Id:        r.ID,
			CreatedAt: time.Unix(r.CreatedAt, 0).In(k.clock.Location()),
		}
	}
	return entries, nil
}
