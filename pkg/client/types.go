package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Money is a decimal amount. The API serializes decimals as strings
// ("19.99") and computed prices as numbers; both decode into Money.
type Money float64

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	f, err := ParseMoney(data)
	if err != nil {
		return err
	}
	*m = Money(f)
	return nil
}

// Float64 returns the amount as float64.
func (m Money) Float64() float64 {
	return float64(m)
}

// ParseMoney decodes a raw JSON number or numeric string. NaN and the
// infinities are rejected even though strconv accepts their spellings.
func ParseMoney(data []byte) (float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, fmt.Errorf("decode money: %w", err)
		}
		data = []byte(s)
	}
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("decode money %q: %w", data, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("decode money %q: %w", data, ErrNonFiniteMoney)
	}
	return f, nil
}

// Category is a portfolio or shop category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Project is a portfolio project.
type Project struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Category    Category `json:"category"`
	Thumbnail   string   `json:"thumbnail"`
	VideoURL    string   `json:"video_url"`
	Description string   `json:"description"`
	Year        int      `json:"year"`
	Featured    bool     `json:"featured"`
	Client      *string  `json:"client,omitempty"`
	Duration    *string  `json:"duration,omitempty"`
}

// ContactSubmission is the contact form payload.
type ContactSubmission struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	ProjectType string `json:"project_type"`
	Message     string `json:"message"`
	Budget      string `json:"budget,omitempty"`
}

// MessageResponse is the generic {"message": "..."} acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// Product is a shop product.
type Product struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Category     Category `json:"category"`
	Price        Money    `json:"price"`
	SalePrice    *Money   `json:"sale_price"`
	CurrentPrice Money    `json:"current_price"`
	Description  string   `json:"description"`
	Image        string   `json:"image"`
	Features     []string `json:"features"`
	Featured     bool     `json:"featured"`
	IsDigital    bool     `json:"is_digital"`
}

// OrderItem is one line of an order request. Prices are never sent; the
// server prices orders authoritatively.
type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderRequest is the order creation payload.
type OrderRequest struct {
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Items         []OrderItem `json:"items"`
}

// OrderLine is a priced line of a created order.
type OrderLine struct {
	Product     int64  `json:"product"`
	ProductName string `json:"product_name"`
	Price       Money  `json:"price"`
	Quantity    int    `json:"quantity"`
	Total       Money  `json:"total"`
}

// Order is a created order.
type Order struct {
	ID            int64       `json:"id"`
	OrderNumber   string      `json:"order_number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Status        string      `json:"status"`
	Subtotal      Money       `json:"subtotal"`
	Total         Money       `json:"total"`
	Items         []OrderLine `json:"items"`
	CreatedAt     *time.Time  `json:"created_at,omitempty"`
}

// OrderResponse is the order creation response. The API has answered both
// {"order": {...}} and a bare order object; either decodes here. An order
// without an order number counts as absent.
type OrderResponse struct {
	order *Order
}

// UnmarshalJSON decodes either response shape.
func (r *OrderResponse) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Order *Order `json:"order"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if wrapped.Order != nil && wrapped.Order.OrderNumber != "" {
		r.order = wrapped.Order
		return nil
	}

	var flat Order
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if flat.OrderNumber != "" {
		r.order = &flat
	}
	return nil
}

// Order returns the created order, if the response carried one.
func (r OrderResponse) Order() (Order, bool) {
	if r.order == nil {
		return Order{}, false
	}
	return *r.order, true
}

// OrderNumber returns the created order's number, if present.
func (r OrderResponse) OrderNumber() (string, bool) {
	if r.order == nil {
		return "", false
	}
	return r.order.OrderNumber, true
}

// BookingService is a bookable service.
type BookingService struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	DurationHours Money  `json:"duration_hours"`
	Price         Money  `json:"price"`
}

// Slot is a candidate booking slot.
type Slot struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// BookingRequest is the booking creation payload. Dates use YYYY-MM-DD and
// times HH:MM.
type BookingRequest struct {
	Service       int64  `json:"service"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	BookingDate   string `json:"booking_date"`
	BookingTime   string `json:"booking_time"`
	DurationHours *Money `json:"duration_hours,omitempty"`
	Location      string `json:"location,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Booking is a created booking.
type Booking struct {
	ID            int64      `json:"id"`
	BookingNumber string     `json:"booking_number"`
	Service       int64      `json:"service"`
	ServiceName   string     `json:"service_name"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	CustomerPhone string     `json:"customer_phone"`
	BookingDate   string     `json:"booking_date"`
	BookingTime   string     `json:"booking_time"`
	DurationHours Money      `json:"duration_hours"`
	Location      string     `json:"location"`
	Message       string     `json:"message"`
	Status        string     `json:"status"`
	Price         Money      `json:"price"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// BookingConfirmation is the booking creation response.
type BookingConfirmation struct {
	Message string   `json:"message"`
	Booking *Booking `json:"booking,omitempty"`
}

// SubscribeRequest is the newsletter subscription payload.
type SubscribeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// SubscriptionStatus reports whether an email is subscribed.
// SubscribedAt is only present for active subscriptions.
type SubscriptionStatus struct {
	Subscribed   bool       `json:"subscribed"`
	SubscribedAt *time.Time `json:"subscribed_at,omitempty"`
}
