// Package postgres opens the PostgreSQL database that backs the postgres
// posting pool.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
)

// Client owns a pooled database handle.
type Client struct {
	DB *sql.DB
}

// New connects with cfg and verifies the connection.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	c, err := Open(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	c.DB.SetMaxOpenConns(cfg.MaxOpenConns)
	c.DB.SetMaxIdleConns(cfg.MaxIdleConns)
	c.DB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return c, nil
}

// Open connects to dsn and verifies the connection within five seconds.
func Open(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	c := &Client{DB: db}
	if err := c.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Ping checks that the database answers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging postgres: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}
