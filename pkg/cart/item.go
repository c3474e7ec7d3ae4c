package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/Sternrassler/storefront-client/pkg/client"
)

// ErrInvalidPrice is returned for a negative or non-finite unit price.
var ErrInvalidPrice = errors.New("invalid unit price")

func validPrice(price float64) bool {
	return !math.IsNaN(price) && !math.IsInf(price, 0) && price >= 0
}

// Item is one line of the cart.
type Item struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image"`
}

// UnmarshalJSON accepts a numeric or string price, as older snapshots
// stored prices the way the API serializes decimals.
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       int64           `json:"id"`
		Name     string          `json:"name"`
		Price    json.RawMessage `json:"price"`
		Quantity int             `json:"quantity"`
		Image    string          `json:"image"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var price float64
	if len(raw.Price) > 0 {
		p, err := client.ParseMoney(raw.Price)
		if err != nil {
			return fmt.Errorf("item %d: %w", raw.ID, err)
		}
		price = p
	}
	if !validPrice(price) {
		return fmt.Errorf("item %d: %w %v", raw.ID, ErrInvalidPrice, price)
	}

	*i = Item{
		ID:        raw.ID,
		Name:      raw.Name,
		UnitPrice: price,
		Quantity:  raw.Quantity,
		Image:     raw.Image,
	}
	return nil
}

// LineTotal returns UnitPrice × Quantity.
func (i Item) LineTotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// Product is what gets added to the cart.
type Product struct {
	ID        int64
	Name      string
	UnitPrice float64
	Image     string
}

// Validate reports whether p can become a cart line.
func (p Product) Validate() error {
	if !validPrice(p.UnitPrice) {
		return fmt.Errorf("product %d: %w %v", p.ID, ErrInvalidPrice, p.UnitPrice)
	}
	return nil
}

// ProductFromAPI converts a shop product, using its current price.
func ProductFromAPI(p client.Product) Product {
	return Product{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.CurrentPrice.Float64(),
		Image:     p.Image,
	}
}

// Customer holds the checkout contact details. Only Name and Email are sent
// with the order.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// State is the cart state delivered to subscribers.
type State struct {
	Items         []Item  `json:"items"`
	ItemCount     int     `json:"item_count"`
	Total         float64 `json:"total"`
	IsCheckingOut bool    `json:"is_checking_out"`
}

func newState(items []Item, checkingOut bool) State {
	s := State{
		Items:         append([]Item{}, items...),
		IsCheckingOut: checkingOut,
	}
	for _, item := range items {
		s.ItemCount += item.Quantity
		s.Total += item.LineTotal()
	}
	return s
}
