// Package cart implements the shopping cart store: an ordered list of line
// items persisted after every mutation, with subscribe/dispatch semantics and
// the order checkout operation.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	cartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Total cart mutations by action",
	}, []string{"action"})

	cartRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_rejected_total",
		Help: "Total cart actions rejected for an invalid payload",
	}, []string{"action"})

	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkouts_total",
		Help: "Total checkout attempts by result",
	}, []string{"result"})
)

// OrderCreator places orders.
type OrderCreator interface {
	CreateOrder(ctx context.Context, order client.OrderRequest, idempotencyKey string) (*client.OrderResponse, error)
}

// Store owns the cart items.
type Store struct {
	kv     storage.KV
	orders OrderCreator
	logger zerolog.Logger

	mu    sync.Mutex
	items []Item

	checkingOut atomic.Bool

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store and restores the persisted snapshot from kv. An absent
// or malformed snapshot yields an empty cart. A nil kv disables persistence.
func New(ctx context.Context, kv storage.KV, orders OrderCreator, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		orders: orders,
		logger: log.With().Str("component", "cart").Logger(),
		subs:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.items = s.load(ctx)
	return s
}

// load restores the snapshot. Lines that fail to decode or have a quantity
// below 1 are dropped.
func (s *Store) load(ctx context.Context) []Item {
	if s.kv == nil {
		return nil
	}

	var raw []json.RawMessage
	if err := storage.GetItem(ctx, s.kv, storage.CartKey, &raw); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Discarding unreadable cart snapshot")
		}
		return nil
	}

	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		var item Item
		if err := json.Unmarshal(r, &item); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed cart line")
			continue
		}
		if item.Quantity < 1 {
			s.logger.Warn().Int64("item_id", item.ID).Int("quantity", item.Quantity).Msg("Dropping cart line with invalid quantity")
			continue
		}
		items = append(items, item)
	}
	return items
}

// persist writes the snapshot. Failures only cost durability across reloads.
func (s *Store) persist(ctx context.Context, items []Item, cleared bool) {
	if s.kv == nil {
		return
	}

	var err error
	if cleared {
		err = storage.RemoveItem(ctx, s.kv, storage.CartKey)
	} else {
		if items == nil {
			items = []Item{}
		}
		err = storage.SetItem(ctx, s.kv, storage.CartKey, items)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cart not persisted")
	}
}

// Dispatch applies action, persists the result and notifies subscribers.
// An action with an invalid payload leaves the cart untouched.
func (s *Store) Dispatch(ctx context.Context, action Action) State {
	if v, ok := action.(validator); ok {
		if err := v.validate(); err != nil {
			cartRejectedTotal.WithLabelValues(action.name()).Inc()
			s.logger.Warn().Err(err).Str("action", action.name()).Msg("Rejected cart action")
			return s.State()
		}
	}

	s.mu.Lock()
	items := action.apply(append([]Item(nil), s.items...))
	s.items = items
	_, cleared := action.(ClearCart)
	if _, ok := action.(orderPlaced); ok && len(items) == 0 {
		cleared = true
	}
	s.persist(ctx, items, cleared)
	state := newState(items, s.checkingOut.Load())
	s.mu.Unlock()

	cartMutationsTotal.WithLabelValues(action.name()).Inc()
	s.logger.Debug().
		Str("action", action.name()).
		Int("item_count", state.ItemCount).
		Msg("Cart updated")

	s.notify(state)
	return state
}

// Subscribe registers fn to receive the state after every transition. The
// returned function unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(state State) {
	s.subsMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// AddItem adds one unit of p.
func (s *Store) AddItem(ctx context.Context, p Product) State {
	return s.Dispatch(ctx, AddItem{Product: p})
}

// RemoveItem removes the line with id.
func (s *Store) RemoveItem(ctx context.Context, id int64) State {
	return s.Dispatch(ctx, RemoveItem{ID: id})
}

// UpdateQuantity sets the quantity of the line with id.
func (s *Store) UpdateQuantity(ctx context.Context, id int64, quantity int) State {
	return s.Dispatch(ctx, UpdateQuantity{ID: id, Quantity: quantity})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) State {
	return s.Dispatch(ctx, ClearCart{})
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newState(s.items, s.checkingOut.Load())
}

// Items returns a copy of the line items in add order.
func (s *Store) Items() []Item {
	return s.State().Items
}

// ItemCount returns the sum of quantities.
func (s *Store) ItemCount() int {
	return s.State().ItemCount
}

// Total returns the sum of price × quantity.
func (s *Store) Total() float64 {
	return s.State().Total
}

// IsCheckingOut reports whether an order is being placed.
func (s *Store) IsCheckingOut() bool {
	return s.checkingOut.Load()
}
