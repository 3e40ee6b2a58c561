// Package sqlite is a Table backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/paperflow/arxetl/internal/item"
	"github.com/paperflow/arxetl/internal/table"
)

// DB is a paper table in SQLite. Items are stored as JSON next to the key
// and index columns.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens or creates the database at path. The table itself is created
// by Ensure.
func Open(path, name string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	if name == "" {
		name = table.DefaultName
	}
	return &DB{db: db, name: name}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) quoted() string {
	return quoteIdent(d.name)
}

// quoteIdent double-quotes name, doubling any quote inside it.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Ensure implements table.Table.
func (d *DB) Ensure(ctx context.Context) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, d.name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", d.name, err)
	}
	if n > 0 {
		return false, nil
	}

	schema := `
		CREATE TABLE IF NOT EXISTS ` + d.quoted() + ` (
			paper_id TEXT PRIMARY KEY,
			primary_category TEXT,
			update_date TEXT,
			item TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS ` + quoteIdent(d.name+"_"+table.IndexName) + `
			ON ` + d.quoted() + `(primary_category, update_date);
	`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return false, fmt.Errorf("creating table %s: %w", d.name, err)
	}
	return true, nil
}

// Get implements table.Table.
func (d *DB) Get(ctx context.Context, paperID string) (item.Item, error) {
	var data string
	err := d.db.QueryRowContext(ctx, `SELECT item FROM `+d.quoted()+` WHERE paper_id = ?`, paperID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", paperID, err)
	}
	it, err := item.UnmarshalJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", paperID, err)
	}
	return it, nil
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
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO `+d.quoted()+` (paper_id, primary_category, update_date, item)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET
			primary_category = excluded.primary_category,
			update_date = excluded.update_date,
			item = excluded.item
	`, key, nullable(it.String(table.IndexHashAttr)), nullable(it.String(table.IndexRangeAttr)), string(data))
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

// QueryCategory implements table.Table.
func (d *DB) QueryCategory(ctx context.Context, q table.CategoryQuery) ([]item.Item, error) {
	query := `SELECT item FROM ` + d.quoted() + ` WHERE primary_category = ? AND update_date IS NOT NULL`
	args := []any{q.Category}
	if q.From != "" {
		query += ` AND update_date >= ?`
		args = append(args, q.From)
	}
	if q.To != "" {
		query += ` AND update_date <= ?`
		args = append(args, q.To)
	}
	if q.Descending {
		query += ` ORDER BY update_date DESC, paper_id`
	} else {
		query += ` ORDER BY update_date, paper_id`
	}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying category %s: %w", q.Category, err)
	}
	defer rows.Close()

	var out []item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Scan implements table.Table. Items are visited in key order.
func (d *DB) Scan(ctx context.Context, fn func(item.Item) bool) error {
	rows, err := d.db.QueryContext(ctx, `SELECT item FROM `+d.quoted()+` ORDER BY paper_id`)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", d.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return err
		}
		if !fn(it) {
			return nil
		}
	}
	return rows.Err()
}

func scanItem(rows *sql.Rows) (item.Item, error) {
	var data string
	if err := rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("scanning row: %w", err)
	}
	it, err := item.UnmarshalJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	return it, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
