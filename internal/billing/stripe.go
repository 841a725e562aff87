// Package billing creates Stripe Checkout sessions for subscription plans.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

var _ core.CheckoutProvider = (*StripeCheckout)(nil)

// Static errors.
var (
	ErrSecretKeyEmpty = errors.New("stripe secret key is empty")
	ErrPriceIDEmpty   = errors.New("price id is empty")
)

// StripeCheckout creates subscription-mode Checkout sessions.
type StripeCheckout struct {
	sessions   *session.Client
	successURL string
	cancelURL  string
}

// Option customises a StripeCheckout.
type Option func(*stripe.BackendConfig)

// WithBackendURL sends API calls to url instead of api.stripe.com.
func WithBackendURL(url string) Option {
	return func(cfg *stripe.BackendConfig) { cfg.URL = stripe.String(url) }
}

// NewStripeCheckout builds a client with its own backend so the process-wide
// stripe.Key is never touched. Network retries are disabled.
func NewStripeCheckout(secretKey, successURL, cancelURL string, opts ...Option) (*StripeCheckout, error) {
	if secretKey == "" {
		return nil, ErrSecretKeyEmpty
	}

	backendConfig := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}

	for _, opt := range opts {
		opt(backendConfig)
	}

	return &StripeCheckout{
		sessions: &session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
			Key: secretKey,
		},
		successURL: successURL,
		cancelURL:  cancelURL,
	}, nil
}

// CreateCheckoutSession returns the id of a new subscription session for
// one unit of priceID.
func (s *StripeCheckout) CreateCheckoutSession(ctx context.Context, priceID string) (string, error) {
	if priceID == "" {
		return "", core.E(core.ErrValidation, "create checkout session", "", ErrPriceIDEmpty)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(s.successURL),
		CancelURL:          stripe.String(s.cancelURL),
	}
	params.Context = ctx

	checkoutSession, err := s.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	return checkoutSession.ID, nil
}
