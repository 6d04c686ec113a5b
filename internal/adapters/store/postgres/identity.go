// Package postgres resolves profiles, roles and keyword watches from the
// account database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	qDisplay  = `SELECT name, username, COALESCE(avatar, '') FROM users WHERE id = $1`
	qRole     = `SELECT role FROM server_members WHERE server_id = $1 AND user_id = $2`
	qUsername = `SELECT id FROM users WHERE lower(username) = lower($1)`
	qKeywords = `SELECT id, notification_keywords FROM users
		WHERE cardinality(notification_keywords) > 0 ORDER BY id`
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Identity struct {
	db querier
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func NewIdentity(pool *pgxpool.Pool) *Identity {
	return &Identity{db: pool}
}

func (i *Identity) GetDisplay(ctx context.Context, user domain.UserID) (domain.Display, error) {
	var d domain.Display
	err := i.db.QueryRow(ctx, qDisplay, string(user)).Scan(&d.Name, &d.Username, &d.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Display{}, core.ErrNotFound
	}
	return d, err
}

func (i *Identity) GetRole(ctx context.Context, server domain.ServerID, user domain.UserID) (domain.Role, bool, error) {
	var role string
	err := i.db.QueryRow(ctx, qRole, string(server), string(user)).Scan(&role)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return domain.ParseRole(role), true, nil
}

func (i *Identity) FindByUsername(ctx context.Context, username string) (domain.UserID, bool, error) {
	var id string
	err := i.db.QueryRow(ctx, qUsername, username).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return domain.UserID(id), true, nil
}

func (i *Identity) KeywordWatchers(ctx context.Context) ([]domain.KeywordWatch, error) {
	rows, err := i.db.Query(ctx, qKeywords)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.KeywordWatch, error) {
		var (
			id string
			kw []string
		)
		err := row.Scan(&id, &kw)
		return domain.KeywordWatch{UserID: domain.UserID(id), Keywords: kw}, err
	})
}
