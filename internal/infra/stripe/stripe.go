package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrSessionNotFound  = errors.New("checkout session not found")
)

// Event types surfaced to callers. Anything else Stripe sends collapses
// into EventIgnored.
const (
	EventCheckoutCompleted     = "checkout_completed"
	EventAsyncPaymentSucceeded = "async_payment_succeeded"
	EventAsyncPaymentFailed    = "async_payment_failed"
	EventIgnored               = "ignored"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type SessionInput struct {
	CustomerEmail string
	ProductName   string
	Description   string
	AmountCents   int64
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type Session struct {
	ID               string
	URL              string
	PaymentReference string
	Paid             bool
	AmountTotalCents int64
	Metadata         map[string]string
}

type Event struct {
	Type    string
	Session Session
}

type Gateway struct {
	api           *client.API
	webhookSecret string
	currency      string
}

func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	currency := cfg.Currency
	if currency == "" {
		currency = "brl"
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &Gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
	}, nil
}

// CreateCheckoutSession opens a hosted checkout page. An existing Stripe
// customer with the same email is reused so repeat buyers keep one
// customer record.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, in SessionInput) (Session, error) {
	customerID, err := g.findCustomerByEmail(ctx, in.CustomerEmail)
	if err != nil {
		return Session{}, err
	}

	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL: stripego.String(in.SuccessURL),
		CancelURL:  stripego.String(in.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripego.String(g.currency),
				UnitAmount: stripego.Int64(in.AmountCents),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripego.String(in.ProductName),
					Description: stripego.String(in.Description),
				},
			},
			Quantity: stripego.Int64(1),
		}},
		PaymentIntentData: &stripego.CheckoutSessionPaymentIntentDataParams{},
	}
	params.Context = ctx

	if customerID != "" {
		params.Customer = stripego.String(customerID)
	} else if in.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(in.CustomerEmail)
	}

	// Metadata rides on the session and on the payment intent so both the
	// webhook and the verify poller can rebind the purchase.
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
		params.PaymentIntentData.AddMetadata(k, v)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}

	return fromCheckoutSession(sess), nil
}

func (g *Gateway) GetCheckoutSession(ctx context.Context, sessionID string) (Session, error) {
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("get checkout session: %w", err)
	}

	return fromCheckoutSession(sess), nil
}

// VerifyWebhook checks the payload signature and maps the Stripe event to
// one of the local event types.
func (g *Gateway) VerifyWebhook(payload []byte, signature string) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, ErrInvalidSignature
	}

	var eventType string
	switch event.Type {
	case "checkout.session.completed":
		eventType = EventCheckoutCompleted
	case "checkout.session.async_payment_succeeded":
		eventType = EventAsyncPaymentSucceeded
	case "checkout.session.async_payment_failed":
		eventType = EventAsyncPaymentFailed
	default:
		return Event{Type: EventIgnored}, nil
	}

	var sess stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return Event{}, fmt.Errorf("decode checkout session event: %w", err)
	}

	return Event{Type: eventType, Session: fromCheckoutSession(&sess)}, nil
}

func (g *Gateway) findCustomerByEmail(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}

	params := &stripego.CustomerListParams{Email: stripego.String(email)}
	params.Context = ctx
	params.Limit = stripego.Int64(1)

	iter := g.api.Customers.List(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}

	return "", nil
}

func fromCheckoutSession(sess *stripego.CheckoutSession) Session {
	out := Session{
		ID:               sess.ID,
		URL:              sess.URL,
		Paid:             sess.PaymentStatus == stripego.CheckoutSessionPaymentStatusPaid,
		AmountTotalCents: sess.AmountTotal,
		Metadata:         sess.Metadata,
	}

	if sess.PaymentIntent != nil {
		out.PaymentReference = sess.PaymentIntent.ID
	}
	if out.PaymentReference == "" {
		out.PaymentReference = sess.ID
	}

	return out
}
