package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	stripeinfra "github.com/ckojak/estudobiblico75/internal/infra/stripe"
	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrBookNotFound        = errors.New("book not found")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrSessionNotFound     = errors.New("checkout session not found")
	ErrForeignSession      = errors.New("session belongs to another user")
	ErrBookMismatch        = errors.New("session was opened for another book")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrGatewayDisabled     = errors.New("payment gateway is not configured")
)

// RateLimitedError reports how long the caller has to wait before the
// next checkout attempt.
type RateLimitedError struct {
	RetryAfterSec int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSec)
}

const (
	metadataBookID = "bookId"
	metadataUserID = "userId"
)

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, in stripeinfra.SessionInput) (stripeinfra.Session, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (stripeinfra.Session, error)
	VerifyWebhook(payload []byte, signature string) (stripeinfra.Event, error)
}

type BookStore interface {
	ResolveByRef(ctx context.Context, ref string) (pgrepo.BookRecord, error)
}

type PurchaseStore interface {
	SettleCompleted(ctx context.Context, in pgrepo.SettleInput) (pgrepo.PurchaseRecord, bool, error)
	FindCompleted(ctx context.Context, userID, bookID string) (pgrepo.PurchaseRecord, error)
	MarkFailed(ctx context.Context, userID, bookID string) (bool, error)
}

type Limiter interface {
	AllowCheckout(ctx context.Context, userID string) (int64, bool, error)
}

type Config struct {
	SuccessURL      string
	CancelURL       string
	ServiceFeeCents int64
}

type Session struct {
	SessionID    string
	URL          string
	AmountCents  int64
	AlreadyOwned bool
}

type VerifyResult struct {
	PurchaseID       string
	AlreadyPurchased bool
}

type WebhookOutcome struct {
	Event      string
	Applied    bool
	PurchaseID string
	Skipped    bool
	Reason     string
}

// Service drives card and PIX checkouts through the hosted gateway and
// settles confirmed payments into the purchase ledger. Settlement runs
// through one idempotent path no matter whether the webhook or the
// verify poller reports first.
type Service struct {
	gateway   Gateway
	books     BookStore
	purchases PurchaseStore
	limiter   Limiter
	cfg       Config
	now       func() time.Time
}

func NewService(gateway Gateway, books BookStore, purchases PurchaseStore, cfg Config) *Service {
	return &Service{
		gateway:   gateway,
		books:     books,
		purchases: purchases,
		cfg:       cfg,
		now:       time.Now,
	}
}

// AttachLimiter enables per-user checkout throttling. Without it every
// attempt is allowed.
func (s *Service) AttachLimiter(limiter Limiter) {
	s.limiter = limiter
}

func (s *Service) CreateSession(ctx context.Context, userID, email, bookRef string) (Session, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(bookRef) == "" {
		return Session{}, ErrValidation
	}
	if s.gateway == nil {
		return Session{}, ErrGatewayDisabled
	}

	if s.limiter != nil {
		retryAfter, allowed, err := s.limiter.AllowCheckout(ctx, userID)
		if err != nil {
			return Session{}, fmt.Errorf("rate limit checkout: %w", err)
		}
		if !allowed {
			return Session{}, &RateLimitedError{RetryAfterSec: retryAfter}
		}
	}

	book, err := s.books.ResolveByRef(ctx, bookRef)
	if err != nil {
		if errors.Is(err, pgrepo.ErrBookNotFound) {
			return Session{}, ErrBookNotFound
		}
		return Session{}, fmt.Errorf("resolve book: %w", err)
	}

	if _, err := s.purchases.FindCompleted(ctx, userID, book.ID); err == nil {
		return Session{AlreadyOwned: true}, nil
	} else if !errors.Is(err, pgrepo.ErrPurchaseNotFound) {
		return Session{}, fmt.Errorf("check entitlement: %w", err)
	}

	amount := book.SalePriceCents + s.cfg.ServiceFeeCents

	successURL := s.cfg.SuccessURL
	if strings.Contains(successURL, "%s") {
		successURL = fmt.Sprintf(successURL, book.Slug)
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, stripeinfra.SessionInput{
		CustomerEmail: email,
		ProductName:   book.Title,
		Description:   book.Description,
		AmountCents:   amount,
		SuccessURL:    successURL,
		CancelURL:     s.cfg.CancelURL,
		Metadata: map[string]string{
			metadataBookID: book.ID,
			metadataUserID: userID,
		},
	})
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}

	return Session{
		SessionID:   sess.ID,
		URL:         sess.URL,
		AmountCents: amount,
	}, nil
}

// VerifySession is the client-driven fallback for the webhook. It asks
// the gateway for the session state and settles when paid. The request's
// book must be the one the session was opened for, a paid session never
// redeems a different book.
func (s *Service) VerifySession(ctx context.Context, userID, sessionID, bookRef string) (VerifyResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" || strings.TrimSpace(bookRef) == "" {
		return VerifyResult{}, ErrValidation
	}
	if s.gateway == nil {
		return VerifyResult{}, ErrGatewayDisabled
	}

	book, err := s.books.ResolveByRef(ctx, bookRef)
	if err != nil {
		if errors.Is(err, pgrepo.ErrBookNotFound) {
			return VerifyResult{}, ErrBookNotFound
		}
		return VerifyResult{}, fmt.Errorf("resolve book: %w", err)
	}

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, stripeinfra.ErrSessionNotFound) {
			return VerifyResult{}, ErrSessionNotFound
		}
		return VerifyResult{}, fmt.Errorf("get checkout session: %w", err)
	}

	if sess.Metadata[metadataUserID] != userID {
		return VerifyResult{}, ErrForeignSession
	}
	if sess.Metadata[metadataBookID] != book.ID {
		return VerifyResult{}, ErrBookMismatch
	}

	if !sess.Paid {
		return VerifyResult{}, ErrPaymentNotCompleted
	}

	rec, applied, err := s.settle(ctx, sess)
	if err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{
		PurchaseID:       rec.ID,
		AlreadyPurchased: !applied,
	}, nil
}

// ProcessWebhook validates the gateway signature and applies the event.
// Unknown events and sessions missing purchase metadata are acknowledged
// without side effects so the gateway stops retrying them.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	if s.gateway == nil {
		return WebhookOutcome{}, ErrGatewayDisabled
	}

	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, stripeinfra.ErrInvalidSignature) {
			return WebhookOutcome{}, ErrInvalidSignature
		}
		return WebhookOutcome{}, fmt.Errorf("verify webhook: %w", err)
	}

	outcome := WebhookOutcome{Event: event.Type}

	switch event.Type {
	case stripeinfra.EventCheckoutCompleted:
		if !event.Session.Paid {
			outcome.Skipped = true
			outcome.Reason = "awaiting async payment"
			return outcome, nil
		}
		return s.applySettle(ctx, outcome, event.Session)

	case stripeinfra.EventAsyncPaymentSucceeded:
		return s.applySettle(ctx, outcome, event.Session)

	case stripeinfra.EventAsyncPaymentFailed:
		bookID := event.Session.Metadata[metadataBookID]
		userID := event.Session.Metadata[metadataUserID]
		if bookID == "" || userID == "" {
			outcome.Skipped = true
			outcome.Reason = "missing purchase metadata"
			return outcome, nil
		}
		changed, err := s.purchases.MarkFailed(ctx, userID, bookID)
		if err != nil {
			return WebhookOutcome{}, fmt.Errorf("mark purchase failed: %w", err)
		}
		outcome.Applied = changed
		return outcome, nil

	default:
		outcome.Skipped = true
		outcome.Reason = "event not handled"
		return outcome, nil
	}
}

func (s *Service) applySettle(ctx context.Context, outcome WebhookOutcome, sess stripeinfra.Session) (WebhookOutcome, error) {
	rec, applied, err := s.settle(ctx, sess)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			outcome.Skipped = true
			outcome.Reason = "missing purchase metadata"
			return outcome, nil
		}
		return WebhookOutcome{}, err
	}

	outcome.Applied = applied
	outcome.PurchaseID = rec.ID
	return outcome, nil
}

func (s *Service) settle(ctx context.Context, sess stripeinfra.Session) (pgrepo.PurchaseRecord, bool, error) {
	bookID := sess.Metadata[metadataBookID]
	userID := sess.Metadata[metadataUserID]
	if bookID == "" || userID == "" || sess.PaymentReference == "" {
		return pgrepo.PurchaseRecord{}, false, ErrValidation
	}

	rec, applied, err := s.purchases.SettleCompleted(ctx, pgrepo.SettleInput{
		UserID:           userID,
		BookID:           bookID,
		AmountPaidCents:  sess.AmountTotalCents,
		ServiceFeeCents:  s.cfg.ServiceFeeCents,
		PaymentReference: sess.PaymentReference,
		Now:              s.now().UTC(),
	})
	if err != nil {
		return pgrepo.PurchaseRecord{}, false, fmt.Errorf("settle purchase: %w", err)
	}

	return rec, applied, nil
}
