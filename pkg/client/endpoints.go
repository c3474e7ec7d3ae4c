package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func categoryQuery(category string) url.Values {
	if category == "" {
		return nil
	}
	return url.Values{"category": []string{category}}
}

// Categories lists portfolio categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.Get(ctx, "/portfolio/categories/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Projects lists portfolio projects, optionally filtered by category slug.
func (c *Client) Projects(ctx context.Context, category string) ([]Project, error) {
	var out []Project
	if err := c.Get(ctx, withQuery("/portfolio/projects/", categoryQuery(category)), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FeaturedProjects lists featured portfolio projects.
func (c *Client) FeaturedProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.Get(ctx, "/portfolio/projects/featured/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Project fetches one project by slug.
func (c *Client) Project(ctx context.Context, slug string) (*Project, error) {
	var out Project
	if err := c.Get(ctx, "/portfolio/projects/"+url.PathEscape(slug)+"/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitContact posts the contact form.
func (c *Client) SubmitContact(ctx context.Context, sub ContactSubmission) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.Post(ctx, "/portfolio/contact/", sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProductCategories lists shop categories.
func (c *Client) ProductCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.Get(ctx, "/shop/categories/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Products lists shop products, optionally filtered by category slug.
func (c *Client) Products(ctx context.Context, category string) ([]Product, error) {
	var out []Product
	if err := c.Get(ctx, withQuery("/shop/products/", categoryQuery(category)), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FeaturedProducts lists featured products.
func (c *Client) FeaturedProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.Get(ctx, "/shop/products/featured/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Product fetches one product by slug.
func (c *Client) Product(ctx context.Context, slug string) (*Product, error) {
	var out Product
	if err := c.Get(ctx, "/shop/products/"+url.PathEscape(slug)+"/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder places an order. A non-empty idempotencyKey is sent so the
// server can collapse duplicate submissions of the same checkout.
func (c *Client) CreateOrder(ctx context.Context, order OrderRequest, idempotencyKey string) (*OrderResponse, error) {
	var out OrderResponse
	if err := c.Post(ctx, "/shop/orders/", order, &out, WithIdempotencyKey(idempotencyKey)); err != nil {
		return nil, err
	}
	return &out, nil
}

// BookingServices lists bookable services.
func (c *Client) BookingServices(ctx context.Context) ([]BookingService, error) {
	var out []BookingService
	if err := c.Get(ctx, "/booking/services/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AvailableSlots lists slots for date. serviceID 0 means "any service".
func (c *Client) AvailableSlots(ctx context.Context, date time.Time, serviceID int64) ([]Slot, error) {
	q := url.Values{"date": []string{date.Format("2006-01-02")}}
	if serviceID > 0 {
		q.Set("service", strconv.FormatInt(serviceID, 10))
	}

	var out []Slot
	if err := c.Get(ctx, withQuery("/booking/bookings/available_slots/", q), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateBooking submits a booking request.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*BookingConfirmation, error) {
	if req.Service <= 0 {
		return nil, fmt.Errorf("booking service is required")
	}

	var out BookingConfirmation
	if err := c.Post(ctx, "/booking/bookings/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscribe subscribes email to the newsletter.
func (c *Client) Subscribe(ctx context.Context, email, name string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.Post(ctx, "/newsletter/subscribe/", SubscribeRequest{Email: email, Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unsubscribe removes email from the newsletter.
func (c *Client) Unsubscribe(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.Post(ctx, "/newsletter/unsubscribe/", SubscribeRequest{Email: email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubscriptionStatus reports the newsletter status of email.
func (c *Client) SubscriptionStatus(ctx context.Context, email string) (*SubscriptionStatus, error) {
	var out SubscriptionStatus
	q := url.Values{"email": []string{email}}
	if err := c.Get(ctx, withQuery("/newsletter/status/", q), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
