// Package postgres provides Postgres-backed storefront stores.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/storefront/internal/shop"
)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// Store implements shop.ProductStore, shop.CartStore and shop.OrderStore.
type Store struct {
	pool pool
}

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const productColumns = `id, slug, name, description, price_cents, currency, image_uri, stock, created_at`

// ListProducts returns products ordered by name.
func (s *Store) ListProducts(ctx context.Context) ([]shop.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, slug`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []shop.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// GetProduct fetches a product by slug.
func (s *Store) GetProduct(ctx context.Context, slug string) (shop.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug))
}

// GetProductByID fetches a product by ID.
func (s *Store) GetProductByID(ctx context.Context, id string) (shop.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// CreateProduct inserts a product.
func (s *Store) CreateProduct(ctx context.Context, p shop.Product) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO products (id, slug, name, description, price_cents, currency, image_uri, stock, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Slug, p.Name, p.Description, p.PriceCents, p.Currency, p.ImageURI, p.Stock, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", mapError(err))
	}
	return nil
}

// SetProductImage records the image URI of a product.
func (s *Store) SetProductImage(ctx context.Context, id, uri string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE products SET image_uri = $1 WHERE id = $2`, uri, id)
	if err != nil {
		return fmt.Errorf("update product image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

// ReserveStock decrements stock for every line inside one transaction.
func (s *Store) ReserveStock(ctx context.Context, lines []shop.CartLine) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	for _, l := range lines {
		tag, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`,
			l.Quantity, l.ProductID,
		)
		if err == nil && tag.RowsAffected() == 0 {
			err = fmt.Errorf("product %s: %w", l.Slug, shop.ErrOutOfStock)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("reserve stock: %w (rollback: %v)", err, rbErr)
			}
			return fmt.Errorf("reserve stock: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reserve: %w", err)
	}
	return nil
}

// GetCart returns the session's cart.
func (s *Store) GetCart(ctx context.Context, sessionID string) (shop.Cart, error) {
	var (
		cart  = shop.Cart{SessionID: sessionID}
		lines []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT lines, updated_at FROM carts WHERE session_id = $1`, sessionID,
	).Scan(&lines, &cart.UpdatedAt)
	if err != nil {
		return shop.Cart{}, fmt.Errorf("get cart: %w", mapError(err))
	}
	if err := json.Unmarshal(lines, &cart.Lines); err != nil {
		return shop.Cart{}, fmt.Errorf("decode cart lines: %w", err)
	}
	return cart, nil
}

// SaveCart upserts the session's cart.
func (s *Store) SaveCart(ctx context.Context, cart shop.Cart) error {
	lines, err := marshalLines(cart.Lines)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO carts (session_id, lines, updated_at) VALUES ($1,$2,$3)
ON CONFLICT (session_id) DO UPDATE SET lines = EXCLUDED.lines, updated_at = EXCLUDED.updated_at`,
		cart.SessionID, lines, cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// DeleteCart removes the session's cart.
func (s *Store) DeleteCart(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM carts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

const orderColumns = `id, session_id, email, address, lines, total_cents, currency, status, placed_at, updated_at`

// CreateOrder inserts an order.
func (s *Store) CreateOrder(ctx context.Context, o shop.Order) error {
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	lines, err := marshalLines(o.Lines)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO orders (`+orderColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.SessionID, o.Email, address, lines, o.TotalCents, o.Currency, string(o.Status), o.PlacedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapError(err))
	}
	return nil
}

// GetOrder fetches an order by ID.
func (s *Store) GetOrder(ctx context.Context, id string) (shop.Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// ListOrders returns every order, newest first.
func (s *Store) ListOrders(ctx context.Context) ([]shop.Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY placed_at DESC, id DESC`)
}

// ListOrdersBySession returns a session's orders, newest first.
func (s *Store) ListOrdersBySession(ctx context.Context, sessionID string) ([]shop.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE session_id = $1 ORDER BY placed_at DESC, id DESC`, sessionID)
}

// UpdateOrderStatus sets the status and update time of an order.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status shop.OrderStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, string(status), at, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]shop.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []shop.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (shop.Product, error) {
	var p shop.Product
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.ImageURI, &p.Stock, &p.CreatedAt)
	if err != nil {
		return shop.Product{}, fmt.Errorf("scan product: %w", mapError(err))
	}
	return p, nil
}

func scanOrder(row pgx.Row) (shop.Order, error) {
	var (
		o              shop.Order
		address, lines []byte
		status         string
	)
	err := row.Scan(&o.ID, &o.SessionID, &o.Email, &address, &lines, &o.TotalCents, &o.Currency, &status, &o.PlacedAt, &o.UpdatedAt)
	if err != nil {
		return shop.Order{}, fmt.Errorf("scan order: %w", mapError(err))
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return shop.Order{}, fmt.Errorf("decode address: %w", err)
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return shop.Order{}, fmt.Errorf("decode order lines: %w", err)
	}
	o.Status = shop.OrderStatus(status)
	return o, nil
}

func marshalLines(lines []shop.CartLine) ([]byte, error) {
	if lines == nil {
		lines = []shop.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encode lines: %w", err)
	}
	return data, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, shop.ErrConflict)
	}
	return err
}
