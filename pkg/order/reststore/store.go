// Package reststore implements order.Store against a Supabase project
// through its PostgREST interface.
//
// PostgREST offers no multi-statement transactions, so CreateOrder reads
// prices and then inserts in two requests. A price change landing between
// them is not detected.
//
// Deliveries are read back leniently and also load from older projects
// that store the customer phone as NUMERIC, order dates without a zone or
// order items as a JSON string.
package reststore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teslashibe/go-waiter/internal/httpc"
	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/order"
)

// Config holds the Supabase endpoint and anon key.
type Config struct {
	URL     string
	AnonKey string

	// Client overrides the shared HTTP client.
	Client *http.Client
	Logger *slog.Logger
}

// Store is a PostgREST-backed order.Store.
type Store struct {
	base   string
	key    string
	client *http.Client
	log    *slog.Logger
}

var _ order.Store = (*Store)(nil)

// APIError is a PostgREST error body.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("reststore: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("reststore: %d: %s", e.StatusCode, e.Message)
}

// New validates cfg and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, errors.New("reststore: URL and AnonKey are required")
	}
	if cfg.Client == nil {
		cfg.Client = httpc.Client
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}
	return &Store{
		base:   strings.TrimRight(cfg.URL, "/") + "/rest/v1/",
		key:    cfg.AnonKey,
		client: cfg.Client,
		log:    cfg.Logger.With("component", "reststore"),
	}, nil
}

// Close implements order.Store.
func (s *Store) Close() {}

// ListMenu implements order.Store.
func (s *Store) ListMenu(ctx context.Context, category string) ([]order.MenuItem, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("is_available", "eq.true")
	q.Set("order", "item_id")
	if category != "" {
		q.Set("category", "eq."+category)
	}
	items := []order.MenuItem{}
	if err := s.do(ctx, http.MethodGet, "menu", q, nil, "", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateOrder implements order.Store.
func (s *Store) CreateOrder(ctx context.Context, o order.NewOrder) (order.Order, error) {
	if err := o.Items.Validate(); err != nil {
		return order.Order{}, err
	}

	ids := o.Items.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	q := url.Values{}
	q.Set("select", "item_id,price")
	q.Set("item_id", "in.("+strings.Join(parts, ",")+")")

	var rows []struct {
		ItemID int64           `json:"item_id"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := s.do(ctx, http.MethodGet, "menu", q, nil, "", &rows); err != nil {
		return order.Order{}, err
	}
	prices := make(map[int64]decimal.Decimal, len(rows))
	for _, r := range rows {
		prices[r.ItemID] = r.Price
	}

	total, err := order.PriceOrder(o.Items, prices)
	if err != nil {
		return order.Order{}, err
	}

	body := map[string]any{
		"items":        o.Items,
		"total_amount": total,
	}
	if o.SpecialRequests != "" {
		body["special_requests"] = o.SpecialRequests
	}
	var created []order.Order
	if err := s.do(ctx, http.MethodPost, "orders", nil, body, "return=representation", &created); err != nil {
		return order.Order{}, err
	}
	if len(created) == 0 {
		return order.Order{}, errors.New("reststore: insert order returned no rows")
	}
	s.log.Debug("order created", "order_id", created[0].OrderID)
	return created[0], nil
}

type deliveryRow struct {
	OrderID             int64                `json:"order_id"`
	OrderDate           *time.Time           `json:"order_date,omitempty"`
	DeliveryAddress     string               `json:"delivery_address"`
	Status              order.DeliveryStatus `json:"status"`
	CustomerPhoneNumber string               `json:"customer_phone_number"`
}

// CreateDelivery implements order.Store.
func (s *Store) CreateDelivery(ctx context.Context, d order.Delivery) error {
	row := deliveryRow{
		OrderID:             d.OrderID,
		DeliveryAddress:     d.DeliveryAddress,
		Status:              d.Status,
		CustomerPhoneNumber: d.CustomerPhoneNumber,
	}
	if !d.OrderDate.IsZero() {
		row.OrderDate = &d.OrderDate
	}
	err := s.do(ctx, http.MethodPost, "deliveries", nil, row, "return=minimal", nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "23503":
			return fmt.Errorf("%w: %d", order.ErrOrderNotFound, d.OrderID)
		case "23505":
			return fmt.Errorf("%w: %d", order.ErrDeliveryExists, d.OrderID)
		}
	}
	return err
}

// DeliveriesByPhone implements order.Store.
func (s *Store) DeliveriesByPhone(ctx context.Context, phone string) ([]order.DeliveryStatusRecord, error) {
	q := url.Values{}
	q.Set("select", "*,orders(*)")
	q.Set("customer_phone_number", "eq."+phone)
	var rows []statusRow
	if err := s.do(ctx, http.MethodGet, "deliveries", q, nil, "", &rows); err != nil {
		return nil, err
	}
	out := make([]order.DeliveryStatusRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// AdvanceDelivery implements order.Store. The update is conditional on
// the status read, so a concurrent advance makes this call fail rather
// than skip a step.
func (s *Store) AdvanceDelivery(ctx context.Context, orderID int64) (order.Delivery, error) {
	id := strconv.FormatInt(orderID, 10)
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order_id", "eq."+id)
	var current []statusRow
	if err := s.do(ctx, http.MethodGet, "deliveries", q, nil, "", &current); err != nil {
		return order.Delivery{}, err
	}
	if len(current) == 0 {
		return order.Delivery{}, fmt.Errorf("%w: %d", order.ErrDeliveryNotFound, orderID)
	}
	d := current[0].delivery()
	next, err := d.Status.Next()
	if err != nil {
		return d, err
	}

	q = url.Values{}
	q.Set("order_id", "eq."+id)
	q.Set("status", "eq."+string(d.Status))
	var updated []statusRow
	patch := map[string]any{"status": next}
	if err := s.do(ctx, http.MethodPatch, "deliveries", q, patch, "return=representation", &updated); err != nil {
		return d, err
	}
	if len(updated) == 0 {
		return d, fmt.Errorf("reststore: delivery %d changed concurrently", orderID)
	}
	return updated[0].delivery(), nil
}

func (s *Store) do(ctx context.Context, method, table string, q url.Values, body any, prefer string, out any) error {
	u := s.base + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("reststore: encode %s: %w", table, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("reststore: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("reststore: %s %s: %w", method, table, err)
	}
	defer httpc.DrainClose(resp)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("reststore: decode %s: %w", table, err)
	}
	return nil
}
