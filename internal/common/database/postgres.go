// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"retail-chat-workers/internal/common/config"
	"retail-chat-workers/pkg/catalog"
)

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresClient wraps the connection that holds the product catalog table.
type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// EnsureCatalogTable creates the product table if it does not exist.
func (c *PostgresClient) EnsureCatalogTable(ctx context.Context, table string) error {
	if !tableNameRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	_, err := c.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	price       NUMERIC(12,2) NOT NULL,
	category    TEXT,
	description TEXT,
	flowers     TEXT[] NOT NULL DEFAULT '{}',
	colors      TEXT[] NOT NULL DEFAULT '{}',
	occasions   TEXT[] NOT NULL DEFAULT '{}',
	styles      TEXT[] NOT NULL DEFAULT '{}',
	available   BOOLEAN NOT NULL DEFAULT TRUE
)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// UpsertProducts writes products in one transaction and returns how many
// rows were written.
func (c *PostgresClient) UpsertProducts(ctx context.Context, table string, products []catalog.Product) (int, error) {
	if !tableNameRe.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+`
	(id, name, price, category, description, flowers, colors, occasions, styles, available)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, price = EXCLUDED.price, category = EXCLUDED.category,
	description = EXCLUDED.description, flowers = EXCLUDED.flowers, colors = EXCLUDED.colors,
	occasions = EXCLUDED.occasions, styles = EXCLUDED.styles, available = EXCLUDED.available`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Price, p.Category, p.Description,
			pq.Array(p.Flowers), pq.Array(p.Colors), pq.Array(p.Occasions), pq.Array(p.Styles), p.Available); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(products), nil
}
