// Package checkout implements the checkout flow state machine: customer
// details, payment confirmation and the success screen.
//
// A Session drives a cart.Store through one order. It holds the idempotency
// token for the order so retried submissions of the same order can be
// de-duplicated by the API. The token is bound to the order payload: a
// changed cart or changed customer details get a fresh token.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/cart"
	"github.com/Sternrassler/storefront-client/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Step is the screen of an open session.
type Step string

const (
	StepInfo    Step = "info"
	StepPayment Step = "payment"
	StepSuccess Step = "success"
)

// Inline messages shown on the current step.
const (
	MsgMissingFields = "Please fill in all required fields"
	MsgInvalidEmail  = "Please enter a valid email address"
	MsgOrderFailed   = "Failed to place order. Please try again."
	MsgRateLimited   = "Too many order attempts. Please wait a minute and try again."
)

var (
	// ErrMissingFields is returned when name or email is empty.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidEmail is returned for an email that does not look like one.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrInvalidStep is returned when an operation is not allowed on the current step.
	ErrInvalidStep = errors.New("operation not allowed in current step")

	// ErrSubmitting is returned while an order submission is in flight.
	ErrSubmitting = errors.New("order submission in progress")

	// ErrRateLimited is returned when too many orders were attempted recently.
	ErrRateLimited = errors.New("too many order attempts")

	// ErrOrderFailed wraps a failed order placement.
	ErrOrderFailed = errors.New("order failed")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CustomerInfo is the form data collected on the info step.
type CustomerInfo = cart.Customer

// Checkouter places an order for the cart contents.
type Checkouter interface {
	Checkout(ctx context.Context, customer cart.Customer, idempotencyKey string) cart.Result
	Items() []cart.Item
}

// AttemptLimiter bounds order attempts. ratelimit.Limiter satisfies it.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// View is a snapshot of a session for rendering.
type View struct {
	Open        bool         `json:"open"`
	Step        Step         `json:"step"`
	Customer    CustomerInfo `json:"customer"`
	OrderNumber string       `json:"order_number,omitempty"`
	Error       string       `json:"error,omitempty"`
	Submitting  bool         `json:"submitting"`
}

// Session is one checkout flow. It is safe for concurrent use.
type Session struct {
	cart    Checkouter
	limiter AttemptLimiter
	logger  zerolog.Logger

	mu          sync.Mutex
	open        bool
	step        Step
	customer    CustomerInfo
	orderNumber string
	errMsg      string
	submitting  bool
	token       string

	// tokenFor is the payload fingerprint the token was first sent with
	tokenFor string
}

// Option configures a Session.
type Option func(*Session)

// WithLimiter bounds PlaceOrder with l under ratelimit.CheckoutKey.
func WithLimiter(l AttemptLimiter) Option {
	return func(s *Session) {
		s.limiter = l
	}
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a closed session on the info step.
func NewSession(c Checkouter, opts ...Option) *Session {
	if c == nil {
		panic("checkout: cart is required")
	}

	s := &Session{
		cart:   c,
		step:   StepInfo,
		logger: log.With().Str("component", "checkout").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open shows the session and generates an idempotency token if none is held.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = true
	if s.token == "" {
		s.token = uuid.NewString()
	}
}

// IsOpen reports whether the session is shown.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Token returns the idempotency token of the current order.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SubmitInfo validates the customer details and moves to the payment step.
// On failure the session stays on the info step with an inline error.
func (s *Session) SubmitInfo(info CustomerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepInfo {
		return fmt.Errorf("%w: submit info from %s", ErrInvalidStep, s.step)
	}

	s.customer = info
	if strings.TrimSpace(info.Name) == "" || strings.TrimSpace(info.Email) == "" {
		s.errMsg = MsgMissingFields
		return ErrMissingFields
	}
	if !emailPattern.MatchString(info.Email) {
		s.errMsg = MsgInvalidEmail
		return ErrInvalidEmail
	}

	s.errMsg = ""
	s.step = StepPayment
	return nil
}

// Back returns from the payment step to the info step. Entered details are kept.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepPayment {
		return fmt.Errorf("%w: back from %s", ErrInvalidStep, s.step)
	}
	if s.submitting {
		return ErrSubmitting
	}

	s.step = StepInfo
	s.errMsg = ""
	return nil
}

// PlaceOrder submits the order with the session's idempotency token. On
// success the session moves to the success step; on failure it stays on the
// payment step with the error message.
func (s *Session) PlaceOrder(ctx context.Context) error {
	s.mu.Lock()
	if s.step != StepPayment {
		s.mu.Unlock()
		return fmt.Errorf("%w: place order from %s", ErrInvalidStep, s.step)
	}
	if s.submitting {
		s.mu.Unlock()
		return ErrSubmitting
	}
	s.bindToken(orderFingerprint(s.customer, s.cart.Items()))
	s.submitting = true
	s.errMsg = ""
	customer, token := s.customer, s.token
	s.mu.Unlock()

	if !s.allow(ctx) {
		s.finish(func() { s.errMsg = MsgRateLimited })
		return ErrRateLimited
	}

	result := s.cart.Checkout(ctx, customer, token)
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = MsgOrderFailed
		}
		s.finish(func() { s.errMsg = msg })

		s.logger.Warn().Err(result.Err).Str("message", msg).Msg("Order not placed")
		if result.Err != nil {
			return fmt.Errorf("%w: %w", ErrOrderFailed, result.Err)
		}
		return fmt.Errorf("%w: %s", ErrOrderFailed, msg)
	}

	s.finish(func() {
		s.orderNumber = result.OrderNumber
		s.step = StepSuccess
	})
	s.logger.Info().Str("order_number", result.OrderNumber).Msg("Checkout complete")
	return nil
}

// bindToken ties the token to payload. A token already sent with a
// different payload is replaced, since the API would answer it with the
// earlier order.
func (s *Session) bindToken(payload string) {
	switch {
	case s.token == "":
		s.token = uuid.NewString()
	case s.tokenFor != "" && s.tokenFor != payload:
		s.token = uuid.NewString()
		s.logger.Debug().Msg("Order changed since last attempt, renewed idempotency token")
	}
	s.tokenFor = payload
}

// orderFingerprint identifies what an order request would carry: customer
// name and email plus the (id, quantity) lines.
func orderFingerprint(customer CustomerInfo, items []cart.Item) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, strconv.FormatInt(item.ID, 10)+"x"+strconv.Itoa(item.Quantity))
	}
	slices.Sort(lines)

	return strconv.Quote(customer.Name) + strconv.Quote(customer.Email) + strings.Join(lines, ",")
}

func (s *Session) allow(ctx context.Context) bool {
	if s.limiter == nil {
		return true
	}

	allowed, err := s.limiter.Allow(ctx, ratelimit.CheckoutKey, ratelimit.CheckoutMaxAttempts, ratelimit.CheckoutWindow)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rate limiter unavailable, allowing order attempt")
		return true
	}
	return allowed
}

func (s *Session) finish(update func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	update()
}

// Close hides the session. Closing from the success step starts a fresh
// order: details, order number and token are cleared. From any other step
// the entered details and the token are kept for the next Open; PlaceOrder
// renews the token if the order has changed by then.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step == StepSuccess {
		s.step = StepInfo
		s.customer = CustomerInfo{}
		s.orderNumber = ""
		s.token = ""
		s.tokenFor = ""
	}
	s.open = false
	s.errMsg = ""
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return View{
		Open:        s.open,
		Step:        s.step,
		Customer:    s.customer,
		OrderNumber: s.orderNumber,
		Error:       s.errMsg,
		Submitting:  s.submitting,
	}
}
