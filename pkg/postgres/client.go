// Package postgres owns the lib/pq connection pool shared by the document
// and index tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/config"
)

// Client exposes the pools directly; stores run their own SQL on DB.
// Locks holds the sessions that keep advisory locks for the length of an
// index operation. It is separate from DB so a lock holder never waits for a
// query connection behind callers that are only waiting for a lock.
type Client struct {
	DB    *sql.DB
	Locks *sql.DB
}

// New opens the pool and waits up to connectTimeout for the first ping, so a
// database that is still starting does not fail the process at once.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitForPing(ctx, db, connectTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	locks, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening postgres lock pool: %w", err)
	}
	locks.SetMaxOpenConns(cfg.MaxOpenConns)
	locks.SetMaxIdleConns(min(cfg.MaxIdleConns, 2))
	return &Client{DB: db, Locks: locks}, nil
}

const connectTimeout = 10 * time.Second

func waitForPing(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	delay := 250 * time.Millisecond
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		slog.Debug("postgres not ready", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay = min(2*delay, 2*time.Second)
	}
}

func (c *Client) Close() error {
	return errors.Join(c.Locks.Close(), c.DB.Close())
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// InTx runs fn in a transaction. It commits when fn returns nil and rolls
// back otherwise, including when fn panics.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
