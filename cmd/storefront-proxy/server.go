package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/cart"
	"github.com/Sternrassler/storefront-client/pkg/checkout"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/errlog"
	"github.com/Sternrassler/storefront-client/pkg/metrics"
	"github.com/Sternrassler/storefront-client/pkg/offline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const (
	requestTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

type server struct {
	redis      *redis.Client
	cart       *cart.Store
	checkout   *checkout.Session
	controller *offline.Controller
	errors     *errlog.Log
	logger     zerolog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type addItemRequest struct {
	ID    int64        `json:"id"`
	Name  string       `json:"name"`
	Price client.Money `json:"price"`
	Image string       `json:"image"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutResponse struct {
	Session checkout.View `json:"session"`
	Cart    cart.State    `json:"cart"`
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/_cart", func(r chi.Router) {
		r.Get("/", s.getCart)
		r.Delete("/", s.clearCart)
		r.Post("/items", s.addItem)
		r.Put("/items/{id}", s.updateQuantity)
		r.Delete("/items/{id}", s.removeItem)
		r.Post("/checkout", s.placeOrder)
	})

	r.Route("/_sw", func(r chi.Router) {
		r.Post("/sync/{tag}", s.sync)
		r.Post("/push", s.push)
	})

	r.Route("/_errors", func(r chi.Router) {
		r.Get("/", s.listErrors)
		r.Delete("/", s.clearErrors)
	})

	// Everything else is the site itself.
	r.Handle("/*", s.controller)

	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Redis not reachable")
		http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
		return
	}
	if !s.controller.Controlling() {
		http.Error(w, "Offline cache not active", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (s *server) getCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cart.State())
}

func (s *server) clearCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cart.Clear(r.Context()))
}

func (s *server) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID <= 0 {
		respondError(w, http.StatusBadRequest, "id must be positive")
		return
	}

	product := cart.Product{
		ID:        req.ID,
		Name:      req.Name,
		UnitPrice: req.Price.Float64(),
		Image:     req.Image,
	}
	if err := product.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "price must be a finite, non-negative amount")
		return
	}

	respondJSON(w, http.StatusCreated, s.cart.AddItem(r.Context(), product))
}

func (s *server) updateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	respondJSON(w, http.StatusOK, s.cart.UpdateQuantity(r.Context(), id, req.Quantity))
}

func (s *server) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.cart.RemoveItem(r.Context(), id))
}

// placeOrder runs the checkout flow in one call: details are (re)submitted,
// then the order is placed. A failed order keeps the session's idempotency
// token, so a retry of the same order is recognised by the API.
func (s *server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var info checkout.CustomerInfo
	if err := decodeBody(w, r, &info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.checkout.Open()
	if s.checkout.View().Step == checkout.StepPayment {
		if err := s.checkout.Back(); err != nil {
			s.respondCheckout(w, http.StatusConflict)
			return
		}
	}

	if err := s.checkout.SubmitInfo(info); err != nil {
		s.respondCheckout(w, http.StatusUnprocessableEntity)
		return
	}

	err := s.checkout.PlaceOrder(r.Context())
	switch {
	case err == nil:
		s.respondCheckout(w, http.StatusCreated)
		s.checkout.Close()
	case errors.Is(err, checkout.ErrRateLimited):
		s.respondCheckout(w, http.StatusTooManyRequests)
	case errors.Is(err, checkout.ErrSubmitting), errors.Is(err, checkout.ErrInvalidStep):
		s.respondCheckout(w, http.StatusConflict)
	case errors.Is(err, cart.ErrCartEmpty):
		s.respondCheckout(w, http.StatusUnprocessableEntity)
	default:
		s.respondCheckout(w, http.StatusBadGateway)
	}
}

func (s *server) respondCheckout(w http.ResponseWriter, status int) {
	respondJSON(w, status, checkoutResponse{
		Session: s.checkout.View(),
		Cart:    s.cart.State(),
	})
}

func (s *server) sync(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Sync(r.Context(), chi.URLParam(r, "tag")); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) push(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := s.controller.Push(r.Context(), payload); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listErrors(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.errors.Records(r.Context()))
}

func (s *server) clearErrors(w http.ResponseWriter, r *http.Request) {
	if err := s.errors.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// respondJSON encodes before writing the header, so an unencodable value
// turns into a 500 instead of an empty success.
func respondJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Int("status", status).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
