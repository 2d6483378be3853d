package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	authsvc "github.com/ckojak/estudobiblico75/internal/services/auth"
	checkoutsvc "github.com/ckojak/estudobiblico75/internal/services/checkout"
	"github.com/ckojak/estudobiblico75/internal/transport/http/dto"
	httperrors "github.com/ckojak/estudobiblico75/internal/transport/http/errors"
)

const maxWebhookBody = 1 << 20

type CheckoutHandler struct {
	checkout *checkoutsvc.Service
	log      *zap.Logger
}

func NewCheckoutHandler(checkout *checkoutsvc.Service, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, log: log}
}

func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.checkout == nil {
		writeServiceUnavailable(w, "CHECKOUT_SERVICE_UNAVAILABLE", "checkout service is unavailable")
		return
	}

	var req dto.CreatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	sess, err := h.checkout.CreateSession(r.Context(), identity.UserID, identity.Email, req.BookID)
	if err != nil {
		var rl *checkoutsvc.RateLimitedError
		switch {
		case errors.As(err, &rl):
			httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
				Code:          "RATE_LIMITED",
				Message:       "too many checkout attempts",
				RetryAfterSec: rl.RetryAfterSec,
			})
		case errors.Is(err, checkoutsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid checkout payload")
		case errors.Is(err, checkoutsvc.ErrBookNotFound):
			writeNotFound(w, "BOOK_NOT_FOUND", "book not found")
		case errors.Is(err, checkoutsvc.ErrGatewayDisabled):
			writeInternal(w, "CONFIGURATION_ERROR", "payment processor is not configured")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to create checkout session")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.CreatePaymentResponse{
		SessionID:        sess.SessionID,
		URL:              sess.URL,
		AmountCents:      sess.AmountCents,
		AlreadyPurchased: sess.AlreadyOwned,
	})
}

func (h *CheckoutHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.checkout == nil {
		writeServiceUnavailable(w, "CHECKOUT_SERVICE_UNAVAILABLE", "checkout service is unavailable")
		return
	}

	var req dto.VerifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.checkout.VerifySession(r.Context(), identity.UserID, req.SessionID, req.BookID)
	if err != nil {
		switch {
		case errors.Is(err, checkoutsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid verify payload")
		case errors.Is(err, checkoutsvc.ErrBookNotFound):
			writeNotFound(w, "BOOK_NOT_FOUND", "book not found")
		case errors.Is(err, checkoutsvc.ErrSessionNotFound):
			writeNotFound(w, "SESSION_NOT_FOUND", "checkout session not found")
		case errors.Is(err, checkoutsvc.ErrForeignSession):
			writeForbidden(w, "FORBIDDEN", "session belongs to another user")
		case errors.Is(err, checkoutsvc.ErrBookMismatch):
			writeForbidden(w, "BOOK_MISMATCH", "session was opened for another book")
		case errors.Is(err, checkoutsvc.ErrPaymentNotCompleted):
			writeBadRequest(w, "PAYMENT_NOT_COMPLETED", "payment is not completed yet")
		case errors.Is(err, checkoutsvc.ErrGatewayDisabled):
			writeInternal(w, "CONFIGURATION_ERROR", "payment processor is not configured")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to verify payment")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.VerifyPaymentResponse{
		Success:          true,
		PurchaseID:       result.PurchaseID,
		AlreadyPurchased: result.AlreadyPurchased,
	})
}

// Webhook reads the raw body before any decoding, the gateway signature
// covers the exact bytes on the wire.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.checkout == nil {
		writeServiceUnavailable(w, "CHECKOUT_SERVICE_UNAVAILABLE", "checkout service is unavailable")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "failed to read webhook body")
		return
	}

	outcome, err := h.checkout.ProcessWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, checkoutsvc.ErrInvalidSignature) {
			writeBadRequest(w, "INVALID_SIGNATURE", "webhook signature verification failed")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to process webhook")
		return
	}

	if h.log != nil {
		h.log.Info("stripe_webhook",
			zap.String("event", outcome.Event),
			zap.Bool("applied", outcome.Applied),
			zap.Bool("skipped", outcome.Skipped),
			zap.String("reason", outcome.Reason),
		)
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookResponse{
		Received: true,
		Applied:  outcome.Applied,
		Skipped:  outcome.Skipped,
		Reason:   outcome.Reason,
	})
}
