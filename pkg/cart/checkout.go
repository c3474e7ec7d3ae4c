package cart

import (
	"context"
	"errors"

	"github.com/Sternrassler/storefront-client/pkg/client"
)

// Messages returned to the checkout UI.
const (
	MsgCartEmpty          = "Cart is empty"
	MsgOrderFailed        = "Unable to process your order. Please try again or contact support."
	MsgCheckoutInProgress = "Checkout already in progress"
)

var (
	// ErrCartEmpty is returned when checking out an empty cart.
	ErrCartEmpty = errors.New("cart is empty")

	// ErrCheckoutInProgress is returned when a checkout is already running.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// Result is the outcome of Checkout.
type Result struct {
	Success     bool
	OrderNumber string

	// Error is the user-facing message on failure.
	Error string

	// Err is the underlying cause on failure.
	Err error
}

// Checkout places an order for the current items. Only when the order call
// succeeds are the ordered lines removed; anything added while the call was
// in flight stays. On failure the cart is left untouched so the user can
// retry. Only one checkout runs at a time.
func (s *Store) Checkout(ctx context.Context, customer Customer, idempotencyKey string) Result {
	items := s.Items()
	if len(items) == 0 {
		checkoutsTotal.WithLabelValues("empty").Inc()
		return Result{Error: MsgCartEmpty, Err: ErrCartEmpty}
	}

	if !s.checkingOut.CompareAndSwap(false, true) {
		checkoutsTotal.WithLabelValues("rejected").Inc()
		return Result{Error: MsgCheckoutInProgress, Err: ErrCheckoutInProgress}
	}
	s.notify(s.State())
	defer func() {
		s.checkingOut.Store(false)
		s.notify(s.State())
	}()

	if s.orders == nil {
		checkoutsTotal.WithLabelValues("failure").Inc()
		return Result{Error: MsgOrderFailed, Err: errors.New("no order service configured")}
	}

	order := buildOrder(customer, items)
	resp, err := s.orders.CreateOrder(ctx, order, idempotencyKey)
	if err != nil {
		checkoutsTotal.WithLabelValues("failure").Inc()
		s.logger.Error().Err(err).Int("lines", len(order.Items)).Msg("Checkout failed")
		return Result{Error: MsgOrderFailed, Err: err}
	}

	s.Dispatch(ctx, orderPlaced{ordered: items})

	var number string
	if resp != nil {
		number, _ = resp.OrderNumber()
	}
	if number == "" {
		s.logger.Warn().Msg("Order accepted without an order number")
	}

	checkoutsTotal.WithLabelValues("success").Inc()
	s.logger.Info().Str("order_number", number).Msg("Order placed")

	return Result{Success: true, OrderNumber: number}
}

// buildOrder creates the order payload. Prices are never sent.
func buildOrder(customer Customer, items []Item) client.OrderRequest {
	order := client.OrderRequest{
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
	}
	for _, item := range items {
		order.Items = append(order.Items, client.OrderItem{
			ProductID: item.ID,
			Quantity:  item.Quantity,
		})
	}
	return order
}
