// Package store implements catalog.Store on SQL databases. Postgres and
// SQLite share the same statements; only placeholder syntax differs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

const lookupChunk = 500

const schema = `
CREATE TABLE IF NOT EXISTS products (
	product_id           TEXT PRIMARY KEY,
	supplier_group_id    TEXT NOT NULL DEFAULT '',
	supplier             TEXT NOT NULL DEFAULT '',
	is_primary_supplier  TEXT NOT NULL DEFAULT '',
	item_description     TEXT NOT NULL DEFAULT '',
	smkts_merch_category TEXT NOT NULL DEFAULT '',
	liq_merch_category   TEXT NOT NULL DEFAULT '',
	digital_brand_name   TEXT NOT NULL DEFAULT '',
	sub_brand_name       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_products_supplier ON products (supplier);
`

const columns = `product_id, supplier_group_id, supplier, is_primary_supplier, item_description,
	smkts_merch_category, liq_merch_category, digital_brand_name, sub_brand_name`

const upsert = `INSERT INTO products (` + columns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (product_id) DO UPDATE SET
	supplier_group_id = excluded.supplier_group_id,
	supplier = excluded.supplier,
	is_primary_supplier = excluded.is_primary_supplier,
	item_description = excluded.item_description,
	smkts_merch_category = excluded.smkts_merch_category,
	liq_merch_category = excluded.liq_merch_category,
	digital_brand_name = excluded.digital_brand_name,
	sub_brand_name = excluded.sub_brand_name`

// SQLStore is a catalog.Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ catalog.Store = (*SQLStore)(nil)

func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "product-store"),
	}
}

// DB exposes the underlying pool for tables owned by other packages.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the products table and its indexes if missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// InsertBatch upserts products in one transaction.
func (s *SQLStore) InsertBatch(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(upsert))
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, p := range products {
			if _, err := stmt.ExecContext(ctx,
				p.ProductID, p.SupplierGroupID, p.Supplier, p.IsPrimarySupplier, p.ItemDescription,
				p.SmktsMerchCategory, p.LiqMerchCategory, p.DigitalBrandName, p.SubBrandName,
			); err != nil {
				return fmt.Errorf("upserting product %s: %w", p.ProductID, err)
			}
		}
		return nil
	})
}

// ListAll streams every product ordered by product id.
func (s *SQLStore) ListAll(ctx context.Context, fn func(catalog.Product) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM products ORDER BY product_id`)
	if err != nil {
		return fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating products: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, productID string) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+columns+` FROM products WHERE product_id = ?`), productID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrProductNotFound, productID)
		}
		return nil, err
	}
	return &p, nil
}

// GetMany returns the products for ids in the order given. Ids that are
// repeated are returned repeatedly; unknown ids are skipped.
func (s *SQLStore) GetMany(ctx context.Context, ids []string) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return []catalog.Product{}, nil
	}
	unique := dedupe(ids)
	found := make(map[string]catalog.Product, len(unique))
	for start := 0; start < len(unique); start += lookupChunk {
		end := min(start+lookupChunk, len(unique))
		chunk := unique[start:end]
		q := `SELECT ` + columns + ` FROM products WHERE product_id IN (` + placeholders(len(chunk)) + `)`
		err := s.queryProducts(ctx, q, toArgs(chunk), func(p catalog.Product) {
			found[p.ProductID] = p
		})
		if err != nil {
			return nil, fmt.Errorf("loading products by id: %w", err)
		}
	}
	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLStore) FindBySuppliers(ctx context.Context, suppliers []string) ([]catalog.Product, error) {
	out := []catalog.Product{}
	if len(suppliers) == 0 {
		return out, nil
	}
	q := `SELECT ` + columns + ` FROM products WHERE supplier IN (` + placeholders(len(suppliers)) + `) ORDER BY product_id`
	err := s.queryProducts(ctx, q, toArgs(suppliers), func(p catalog.Product) {
		out = append(out, p)
	})
	if err != nil {
		return nil, fmt.Errorf("finding products by supplier: %w", err)
	}
	return out, nil
}

// SearchLike does a case-insensitive substring match over the text columns.
// It is the unindexed baseline the search index is compared against.
func (s *SQLStore) SearchLike(ctx context.Context, term string, limit int) ([]catalog.Product, error) {
	out := []catalog.Product{}
	term = strings.TrimSpace(term)
	if term == "" || limit <= 0 {
		return out, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	q := `SELECT ` + columns + ` FROM products
WHERE LOWER(product_id) LIKE ? ESCAPE '\'
   OR LOWER(supplier) LIKE ? ESCAPE '\'
   OR LOWER(item_description) LIKE ? ESCAPE '\'
   OR LOWER(digital_brand_name) LIKE ? ESCAPE '\'
   OR LOWER(sub_brand_name) LIKE ? ESCAPE '\'
ORDER BY product_id
LIMIT ` + strconv.Itoa(limit)
	args := []any{pattern, pattern, pattern, pattern, pattern}
	err := s.queryProducts(ctx, q, args, func(p catalog.Product) {
		out = append(out, p)
	})
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) queryProducts(ctx context.Context, q string, args []any, fn func(catalog.Product)) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return err
		}
		fn(p)
	}
	return rows.Err()
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var sb strings.Builder
	sb.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ProductID, &p.SupplierGroupID, &p.Supplier, &p.IsPrimarySupplier, &p.ItemDescription,
		&p.SmktsMerchCategory, &p.LiqMerchCategory, &p.DigitalBrandName, &p.SubBrandName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scanning product: %w", err)
	}
	return p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
