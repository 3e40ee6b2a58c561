// Package postgres is a Table backed by PostgreSQL. Items are stored as
// JSONB next to the key and index columns.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paperflow/arxetl/internal/item"
	"github.com/paperflow/arxetl/internal/table"
)

// DB is a paper table in PostgreSQL.
type DB struct {
	pool  *pgxpool.Pool
	name  string
	ident string
}

// Open connects to the database at url.
func Open(ctx context.Context, url, name string) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if name == "" {
		name = table.DefaultName
	}
	return &DB{pool: pool, name: name, ident: pgx.Identifier{name}.Sanitize()}, nil
}

// Close implements table.Table.
func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// Drop removes the table. Used by tests and `table init --recreate`.
func (d *DB) Drop(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, `DROP TABLE IF EXISTS `+d.ident); err != nil {
		return fmt.Errorf("dropping %s: %w", d.name, err)
	}
	return nil
}

// Ensure implements table.Table.
func (d *DB) Ensure(ctx context.Context) (bool, error) {
	var exists bool
	if err := d.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, d.ident).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking table %s: %w", d.name, err)
	}
	if exists {
		return false, nil
	}

	index := pgx.Identifier{d.name + "_" + table.IndexName}.Sanitize()
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+d.ident+` (
			paper_id TEXT PRIMARY KEY,
			primary_category TEXT,
			update_date TEXT,
			item JSONB NOT NULL
		)`)
	if err != nil {
		return false, fmt.Errorf("creating table %s: %w", d.name, err)
	}
	_, err = d.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS `+index+` ON `+d.ident+` (primary_category, update_date)`)
	if err != nil {
		return false, fmt.Errorf("creating index on %s: %w", d.name, err)
	}
	return true, nil
}

// Get implements table.Table.
func (d *DB) Get(ctx context.Context, paperID string) (item.Item, error) {
	var data string
	err := d.pool.QueryRow(ctx, `SELECT item::text FROM `+d.ident+` WHERE paper_id = $1`, paperID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", paperID, err)
	}
	return item.UnmarshalJSON([]byte(data))
}

// Put implements table.Table.
func (d *DB) Put(ctx context.Context, it item.Item) error {
	key, err := table.KeyOf(it)
	if err != nil {
		return err
	}
	data, err := item.MarshalJSON(it)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO `+d.ident+` (paper_id, primary_category, update_date, item)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (paper_id) DO UPDATE SET
			primary_category = EXCLUDED.primary_category,
			update_date = EXCLUDED.update_date,
			item = EXCLUDED.item`,
		key, nullable(it.String(table.IndexHashAttr)), nullable(it.String(table.IndexRangeAttr)), string(data))
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

// QueryCategory implements table.Table.
func (d *DB) QueryCategory(ctx context.Context, q table.CategoryQuery) ([]item.Item, error) {
	query := `SELECT item::text FROM ` + d.ident + ` WHERE primary_category = $1 AND update_date IS NOT NULL`
	args := []any{q.Category}
	if q.From != "" {
		args = append(args, q.From)
		query += fmt.Sprintf(` AND update_date >= $%d`, len(args))
	}
	if q.To != "" {
		args = append(args, q.To)
		query += fmt.Sprintf(` AND update_date <= $%d`, len(args))
	}
	if q.Descending {
		query += ` ORDER BY update_date DESC, paper_id`
	} else {
		query += ` ORDER BY update_date, paper_id`
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying category %s: %w", q.Category, err)
	}
	defer rows.Close()

	var out []item.Item
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		it, err := item.UnmarshalJSON([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Scan implements table.Table. Items are visited in key order.
func (d *DB) Scan(ctx context.Context, fn func(item.Item) bool) error {
	rows, err := d.pool.Query(ctx, `SELECT item::text FROM `+d.ident+` ORDER BY paper_id`)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", d.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		it, err := item.UnmarshalJSON([]byte(data))
		if err != nil {
			return err
		}
		if !fn(it) {
			return nil
		}
	}
	return rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
