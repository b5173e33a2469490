package reststore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teslashibe/go-waiter/pkg/order"
)

// statusRow is a deliveries row with its order embedded.
type statusRow struct {
	OrderID             int64                `json:"order_id"`
	OrderDate           looseTime            `json:"order_date"`
	DeliveryAddress     string               `json:"delivery_address"`
	Status              order.DeliveryStatus `json:"status"`
	CourierName         looseString          `json:"courier_name"`
	CourierPhoneNumber  looseString          `json:"courier_phone_number"`
	CustomerPhoneNumber looseString          `json:"customer_phone_number"`
	Orders              *orderRow            `json:"orders"`
}

type orderRow struct {
	OrderID         int64           `json:"order_id"`
	Items           looseItems      `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	SpecialRequests looseString     `json:"special_requests"`
}

func (r statusRow) delivery() order.Delivery {
	return order.Delivery{
		OrderID:             r.OrderID,
		OrderDate:           time.Time(r.OrderDate),
		DeliveryAddress:     r.DeliveryAddress,
		Status:              r.Status,
		CourierName:         string(r.CourierName),
		CourierPhoneNumber:  string(r.CourierPhoneNumber),
		CustomerPhoneNumber: string(r.CustomerPhoneNumber),
	}
}

func (r statusRow) record() order.DeliveryStatusRecord {
	rec := order.DeliveryStatusRecord{Delivery: r.delivery()}
	if r.Orders != nil {
		rec.Order = order.Order{
			OrderID:         r.Orders.OrderID,
			Items:           order.Items(r.Orders.Items),
			TotalAmount:     r.Orders.TotalAmount,
			SpecialRequests: string(r.Orders.SpecialRequests),
		}
	}
	return rec
}

// looseString accepts a JSON string, number or null.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("reststore: want string or number, got %s", b)
	}
	*s = looseString(n.String())
	return nil
}

// zonelessLayouts are tried after RFC 3339. Times without a zone are UTC.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// looseTime accepts RFC 3339 or a timestamp without time zone.
type looseTime time.Time

func (t *looseTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*t = looseTime{}
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		*t = looseTime(ts)
		return nil
	}
	for _, layout := range zonelessLayouts {
		if ts, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			*t = looseTime(ts)
			return nil
		}
	}
	return fmt.Errorf("reststore: bad timestamp %q", v)
}

// looseItems accepts an items object or that object encoded as a string.
type looseItems order.Items

func (it *looseItems) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return err
		}
		b = []byte(inner)
	}
	var items order.Items
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("reststore: items: %w", err)
	}
	*it = looseItems(items)
	return nil
}
