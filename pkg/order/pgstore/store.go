// Package pgstore implements order.Store on PostgreSQL with pgx.
//
// CreateOrder reads prices and inserts the order inside one transaction,
// holding share locks on the menu rows it priced, so a concurrent price
// change cannot land between the two steps.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/order"
)

// Postgres error codes mapped onto order errors.
const (
	codeForeignKey = "23503"
	codeUnique     = "23505"
)

// Store is a pgx-backed order.Store.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ order.Store = (*Store)(nil)

// Connect opens a pool against dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if logger == nil {
		logger = log.L()
	}
	return &Store{pool: pool, log: logger.With("component", "pgstore")}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// ListMenu implements order.Store.
func (s *Store) ListMenu(ctx context.Context, category string) ([]order.MenuItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_id, category, name, description, price, is_available
		FROM menu
		WHERE is_available AND ($1 = '' OR category = $1)
		ORDER BY item_id`, category)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list menu: %w", err)
	}
	defer rows.Close()

	items := []order.MenuItem{}
	for rows.Next() {
		var m order.MenuItem
		if err := rows.Scan(&m.ItemID, &m.Category, &m.Name, &m.Description, &m.Price, &m.IsAvailable); err != nil {
			return nil, fmt.Errorf("pgstore: scan menu: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list menu: %w", err)
	}
	return items, nil
}

// CreateOrder implements order.Store.
func (s *Store) CreateOrder(ctx context.Context, o order.NewOrder) (order.Order, error) {
	if err := o.Items.Validate(); err != nil {
		return order.Order{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return order.Order{}, fmt.Errorf("pgstore: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT item_id, price FROM menu WHERE item_id = ANY($1) FOR SHARE`, o.Items.IDs())
	if err != nil {
		return order.Order{}, fmt.Errorf("pgstore: price lookup: %w", err)
	}
	prices := make(map[int64]decimal.Decimal, len(o.Items))
	for rows.Next() {
		var (
			id    int64
			price decimal.Decimal
		)
		if err := rows.Scan(&id, &price); err != nil {
			rows.Close()
			return order.Order{}, fmt.Errorf("pgstore: scan price: %w", err)
		}
		prices[id] = price
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return order.Order{}, fmt.Errorf("pgstore: price lookup: %w", err)
	}

	total, err := order.PriceOrder(o.Items, prices)
	if err != nil {
		return order.Order{}, err
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return order.Order{}, fmt.Errorf("pgstore: encode items: %w", err)
	}

	created := order.Order{Items: o.Items, TotalAmount: total, SpecialRequests: o.SpecialRequests}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (items, total_amount, special_requests)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING order_id`,
		itemsJSON, total, o.SpecialRequests,
	).Scan(&created.OrderID)
	if err != nil {
		return order.Order{}, fmt.Errorf("pgstore: insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return order.Order{}, fmt.Errorf("pgstore: commit: %w", err)
	}
	s.log.Debug("order created", "order_id", created.OrderID, "total", created.TotalAmount.StringFixed(order.PriceScale))
	return created, nil
}

// CreateDelivery implements order.Store. A missing order surfaces as
// order.ErrOrderNotFound through the foreign key.
func (s *Store) CreateDelivery(ctx context.Context, d order.Delivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (order_id, order_date, delivery_address, status, customer_phone_number)
		VALUES ($1, COALESCE($2, now()), $3, $4, $5)`,
		d.OrderID, nullTime(d), d.DeliveryAddress, string(d.Status), d.CustomerPhoneNumber)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case codeForeignKey:
				return fmt.Errorf("%w: %d", order.ErrOrderNotFound, d.OrderID)
			case codeUnique:
				return fmt.Errorf("%w: %d", order.ErrDeliveryExists, d.OrderID)
			}
		}
		return fmt.Errorf("pgstore: insert delivery: %w", err)
	}
	return nil
}

// DeliveriesByPhone implements order.Store.
func (s *Store) DeliveriesByPhone(ctx context.Context, phone string) ([]order.DeliveryStatusRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.order_id, d.order_date, d.delivery_address, d.status,
		       COALESCE(d.courier_name, ''), COALESCE(d.courier_phone_number, ''),
		       d.customer_phone_number,
		       o.items, o.total_amount, COALESCE(o.special_requests, '')
		FROM deliveries d
		JOIN orders o ON o.order_id = d.order_id
		WHERE d.customer_phone_number = $1
		ORDER BY d.order_date DESC`, phone)
	if err != nil {
		return nil, fmt.Errorf("pgstore: deliveries by phone: %w", err)
	}
	defer rows.Close()

	out := []order.DeliveryStatusRecord{}
	for rows.Next() {
		var (
			r      order.DeliveryStatusRecord
			status string
			items  []byte
		)
		err := rows.Scan(&r.OrderID, &r.OrderDate, &r.DeliveryAddress, &status,
			&r.CourierName, &r.CourierPhoneNumber, &r.CustomerPhoneNumber,
			&items, &r.Order.TotalAmount, &r.Order.SpecialRequests)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan delivery: %w", err)
		}
		r.Status = order.DeliveryStatus(status)
		r.Order.OrderID = r.OrderID
		if err := json.Unmarshal(items, &r.Order.Items); err != nil {
			return nil, fmt.Errorf("pgstore: decode items for order %d: %w", r.OrderID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AdvanceDelivery implements order.Store.
func (s *Store) AdvanceDelivery(ctx context.Context, orderID int64) (order.Delivery, error) {
	var d order.Delivery
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `
			SELECT order_id, order_date, delivery_address, status,
			       COALESCE(courier_name, ''), COALESCE(courier_phone_number, ''),
			       customer_phone_number
			FROM deliveries WHERE order_id = $1 FOR UPDATE`, orderID,
		).Scan(&d.OrderID, &d.OrderDate, &d.DeliveryAddress, &status,
			&d.CourierName, &d.CourierPhoneNumber, &d.CustomerPhoneNumber)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", order.ErrDeliveryNotFound, orderID)
		}
		if err != nil {
			return err
		}
		d.Status = order.DeliveryStatus(status)
		next, err := d.Status.Next()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE deliveries SET status = $2 WHERE order_id = $1`, orderID, string(next)); err != nil {
			return err
		}
		d.Status = next
		return nil
	})
	if err != nil {
		return d, err
	}
	return d, nil
}

func nullTime(d order.Delivery) any {
	if d.OrderDate.IsZero() {
		return nil
	}
	return d.OrderDate
}
