package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type LongTermToken struct {
	Namespace string
	ID        string
	Token     string
	CreatedAt int64
}

const putToken = `insert into long_term_token (namespace, id, token, created_at)
values (?, ?, ?, ?)
on conflict (namespace, id) do update set token = excluded.token, created_at = excluded.created_at`

type PutTokenParams struct {
	Namespace string
	ID        string
	Token     string
	CreatedAt int64
}

func (q *Queries) PutToken(ctx context.Context, arg PutTokenParams) error {
	_, err := q.db.ExecContext(ctx, putToken,
		arg.Namespace,
		arg.ID,
		arg.Token,
		arg.CreatedAt,
	)
	return err
}

const getToken = `select namespace, id, token, created_at from long_term_token
where namespace = ? and id = ?`

type GetTokenParams struct {
	Namespace string
	ID        string
}

func (q *Queries) GetToken(ctx context.Context, arg GetTokenParams) (LongTermToken, error) {
	row := q.db.QueryRowContext(ctx, getToken, arg.Namespace, arg.ID)
	var i LongTermToken
	err := row.Scan(
		&i.Namespace,
		&i.ID,
		&i.Token,
		&i.CreatedAt,
	)
	return i, err
}

const deleteToken = `delete from long_term_token where namespace = ? and id = ?`

type DeleteTokenParams struct {
	Namespace string
	ID        string
}

func (q *Queries) DeleteToken(ctx context.Context, arg DeleteTokenParams) error {
	_, err := q.db.ExecContext(ctx, deleteToken, arg.Namespace, arg.ID)
	return err
}

const listTokens = `select namespace, id, token, created_at from long_term_token
where namespace = ? order by id`

func (q *Queries) ListTokens(ctx context.Context, namespace string) ([]LongTermToken, error) {
	rows, err := q.db.QueryContext(ctx, listTokens, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LongTermToken
	for rows.Next() {
		var i LongTermToken
		if err := rows.Scan(
			&i.Namespace,
			&i.ID,
			&i.Token,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
