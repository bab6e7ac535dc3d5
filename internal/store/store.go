// Package store provides the Postgres-backed product repository shared by
// the site monitors and the dashboard API.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopmon/shopmon/internal/catalog"
)

// ErrNotFound is returned when a lookup matches no product row.
var ErrNotFound = errors.New("product not found")

// TransitionField names one of the two availability-transition timestamp
// columns that can be patched independently of a full upsert.
type TransitionField string

// Patchable transition columns.
const (
	FieldBecameAvailable   TransitionField = "became_available_at"
	FieldBecameUnavailable TransitionField = "became_unavailable_at"
)

// Row is the mutable portion of a product record written on every
// observation.
type Row struct {
	ID          int64  `json:"id"`
	Site        string `json:"site"`
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Available   bool   `json:"available"`
	Price       string `json:"price"`
	Vendor      string `json:"vendor"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	PublishedAt string `json:"published_at"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	Raw         []byte `json:"-"`
}

// StoredProduct is a full persisted product row.
type StoredProduct struct {
	Row
	DateAdded           time.Time  `json:"date_added"`
	LastSeen            time.Time  `json:"last_seen"`
	BecameAvailableAt   *time.Time `json:"became_available_at"`
	BecameUnavailableAt *time.Time `json:"became_unavailable_at"`
	IgnoreNotifications bool       `json:"ignore_notifications"`
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ProductStore is the durable repository keyed by (product id, site url).
// Every mutating operation holds one store-wide lock for its full
// read-modify-write; monitors for different sites queue on it.
type ProductStore struct {
	pool dbPool
	mu   sync.Mutex
}

// New opens a pooled Postgres connection and returns the store. Init must
// be called before any monitor starts writing.
func New(ctx context.Context, cfg Config) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool dbPool) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProductStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Init creates the products table if absent and applies additive column
// migrations. It is idempotent and safe to run repeatedly; callers may
// trigger it redundantly and it still serializes under the store lock.
func (s *ProductStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
	id BIGINT NOT NULL,
	site_url TEXT NOT NULL,
	handle TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	available BOOLEAN NOT NULL DEFAULT FALSE,
	price TEXT NOT NULL DEFAULT '0.00',
	vendor TEXT NOT NULL DEFAULT '',
	product_url TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT 'Other',
	published_at TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT '',
	raw_payload JSONB,
	date_added TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (id, site_url)
)`,
		// Columns introduced after the initial release; additive only.
		`ALTER TABLE products ADD COLUMN IF NOT EXISTS became_available_at TIMESTAMPTZ`,
		`ALTER TABLE products ADD COLUMN IF NOT EXISTS became_unavailable_at TIMESTAMPTZ`,
		`ALTER TABLE products ADD COLUMN IF NOT EXISTS ignore_notifications BOOLEAN NOT NULL DEFAULT FALSE`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init products table: %w", err)
		}
	}
	return nil
}

// LoadSnapshot returns the last observed (availability, price) per product
// id for one site. Monitors call it once at startup so a restart never
// mistakes existing products for new ones.
func (s *ProductStore) LoadSnapshot(ctx context.Context, site string) (map[int64]catalog.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, available, price FROM products WHERE site_url = $1`, site)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[int64]catalog.Snapshot)
	for rows.Next() {
		var (
			id        int64
			available bool
			price     string
		)
		if err := rows.Scan(&id, &available, &price); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		value, ok := parsePrice(price)
		snapshot[id] = catalog.Snapshot{
			Available: available,
			Price:     value,
			HasPrice:  ok,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snapshot, nil
}

// Upsert inserts a new row or replaces the mutable columns of an existing
// (id, site) row, refreshing last_seen. date_added is preserved across
// updates and only set on insert, so re-applying an identical observation
// changes nothing but last_seen.
func (s *ProductStore) Upsert(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
INSERT INTO products (
	id, site_url, handle, title, available, price, vendor, product_url,
	category, published_at, created_at, updated_at, raw_payload, last_seen
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW()
)
ON CONFLICT (id, site_url) DO UPDATE SET
	handle = EXCLUDED.handle,
	title = EXCLUDED.title,
	available = EXCLUDED.available,
	price = EXCLUDED.price,
	vendor = EXCLUDED.vendor,
	product_url = EXCLUDED.product_url,
	category = EXCLUDED.category,
	published_at = EXCLUDED.published_at,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at,
	raw_payload = EXCLUDED.raw_payload,
	last_seen = NOW()`

	args := []any{
		row.ID,
		row.Site,
		row.Handle,
		row.Title,
		row.Available,
		row.Price,
		row.Vendor,
		row.URL,
		row.Category,
		row.PublishedAt,
		row.CreatedAt,
		row.UpdatedAt,
		row.Raw,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert product %d for %s: %w", row.ID, row.Site, err)
	}
	return nil
}

// PatchTransition sets one of the availability-transition timestamps
// independently of a full upsert, so the transition is never lost even if
// the surrounding upsert is skipped.
func (s *ProductStore) PatchTransition(ctx context.Context, id int64, site string, field TransitionField, at time.Time) error {
	switch field {
	case FieldBecameAvailable, FieldBecameUnavailable:
	default:
		return fmt.Errorf("invalid transition field %q", field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(
		`UPDATE products SET %s = $1 WHERE id = $2 AND site_url = $3`, field)
	if _, err := s.pool.Exec(ctx, query, at, id, site); err != nil {
		return fmt.Errorf("patch %s for product %d: %w", field, id, err)
	}
	return nil
}

const productColumns = `id, site_url, handle, title, available, price, vendor,
	product_url, category, published_at, created_at, updated_at, raw_payload,
	date_added, last_seen, became_available_at, became_unavailable_at,
	ignore_notifications`

// List returns products ordered by last_seen descending, optionally
// filtered by site.
func (s *ProductStore) List(ctx context.Context, site string, limit, offset int) ([]StoredProduct, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if site != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+productColumns+` FROM products WHERE site_url = $1
			 ORDER BY last_seen DESC LIMIT $2 OFFSET $3`, site, limit, offset)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+productColumns+` FROM products
			 ORDER BY last_seen DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Count returns the number of product rows, optionally filtered by site.
func (s *ProductStore) Count(ctx context.Context, site string) (int, error) {
	var (
		total int
		err   error
	)
	if site != "" {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM products WHERE site_url = $1`, site).Scan(&total)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// Search matches q case-insensitively against title, vendor, category and
// the raw payload, ordered by last_seen descending.
func (s *ProductStore) Search(ctx context.Context, q string, limit, offset int) ([]StoredProduct, error) {
	like := "%" + q + "%"
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE title ILIKE $1 OR vendor ILIKE $1 OR category ILIKE $1
		    OR raw_payload::text ILIKE $1
		 ORDER BY last_seen DESC LIMIT $2 OFFSET $3`, like, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// SearchCount returns the total number of rows matching q.
func (s *ProductStore) SearchCount(ctx context.Context, q string) (int, error) {
	like := "%" + q + "%"
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products
		 WHERE title ILIKE $1 OR vendor ILIKE $1 OR category ILIKE $1
		    OR raw_payload::text ILIKE $1`, like).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count search results: %w", err)
	}
	return total, nil
}

// Get returns one product. With an empty site the most recently seen row
// for the id is returned, which matches the dashboard's id-only lookups.
func (s *ProductStore) Get(ctx context.Context, id int64, site string) (StoredProduct, error) {
	var row pgx.Row
	if site != "" {
		row = s.pool.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products
			 WHERE id = $1 AND site_url = $2`, id, site)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products
			 WHERE id = $1 ORDER BY last_seen DESC LIMIT 1`, id)
	}
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredProduct{}, ErrNotFound
	}
	if err != nil {
		return StoredProduct{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

// Update overwrites the dashboard-editable fields of one row, including
// the ignore-notifications flag. The monitoring core writes through Upsert
// instead; this is the external collaborator's edit path.
func (s *ProductStore) Update(ctx context.Context, p StoredProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.pool.Exec(ctx, `
UPDATE products SET
	handle = $3, title = $4, available = $5, price = $6, vendor = $7,
	product_url = $8, category = $9, ignore_notifications = $10
WHERE id = $1 AND site_url = $2`,
		p.ID, p.Site, p.Handle, p.Title, p.Available, p.Price, p.Vendor,
		p.URL, p.Category, p.IgnoreNotifications)
	if err != nil {
		return fmt.Errorf("update product %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one row.
func (s *ProductStore) Delete(ctx context.Context, id int64, site string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM products WHERE id = $1 AND site_url = $2`, id, site)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProducts(rows pgx.Rows) ([]StoredProduct, error) {
	var out []StoredProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (StoredProduct, error) {
	var p StoredProduct
	err := row.Scan(
		&p.ID,
		&p.Site,
		&p.Handle,
		&p.Title,
		&p.Available,
		&p.Price,
		&p.Vendor,
		&p.URL,
		&p.Category,
		&p.PublishedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Raw,
		&p.DateAdded,
		&p.LastSeen,
		&p.BecameAvailableAt,
		&p.BecameUnavailableAt,
		&p.IgnoreNotifications,
	)
	if err != nil {
		return StoredProduct{}, err
	}
	return p, nil
}

func parsePrice(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
