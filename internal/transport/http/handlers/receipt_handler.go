package handlers

import (
	"errors"
	"net/http"
	"strconv"

	authsvc "github.com/ckojak/estudobiblico75/internal/services/auth"
	receiptsvc "github.com/ckojak/estudobiblico75/internal/services/receipts"
	"github.com/ckojak/estudobiblico75/internal/transport/http/dto"
	httperrors "github.com/ckojak/estudobiblico75/internal/transport/http/errors"
)

const maxReceiptForm = 6 << 20

type ReceiptHandler struct {
	receipts *receiptsvc.Service
}

func NewReceiptHandler(receipts *receiptsvc.Service) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// Submit accepts a multipart form with the book reference and the
// transfer receipt file.
func (h *ReceiptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.receipts == nil {
		writeServiceUnavailable(w, "RECEIPTS_SERVICE_UNAVAILABLE", "receipts service is unavailable")
		return
	}

	if err := r.ParseMultipartForm(maxReceiptForm); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid multipart form")
		return
	}

	bookRef := r.FormValue("bookId")
	file, header, err := r.FormFile("receipt")
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "receipt file is required")
		return
	}
	defer func() { _ = file.Close() }()

	sub, err := h.receipts.Submit(r.Context(), identity.UserID, identity.Email, bookRef,
		header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		switch {
		case errors.Is(err, receiptsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid receipt payload")
		case errors.Is(err, receiptsvc.ErrUnsupportedFile):
			writeBadRequest(w, "UNSUPPORTED_FILE", "receipt must be jpeg, png, webp or pdf")
		case errors.Is(err, receiptsvc.ErrFileTooLarge):
			writeBadRequest(w, "FILE_TOO_LARGE", "receipt file exceeds 5MB")
		case errors.Is(err, receiptsvc.ErrBookNotFound):
			writeNotFound(w, "BOOK_NOT_FOUND", "book not found")
		case errors.Is(err, receiptsvc.ErrAlreadyOwned):
			writeConflict(w, "ALREADY_PURCHASED", "book is already purchased")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to submit receipt")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ReceiptSubmitResponse{
		PurchaseID: sub.PurchaseID,
		Status:     sub.Status,
		Resubmit:   !sub.Created,
	})
}

func (h *ReceiptHandler) Pix(w http.ResponseWriter, _ *http.Request) {
	if h.receipts == nil {
		writeServiceUnavailable(w, "RECEIPTS_SERVICE_UNAVAILABLE", "receipts service is unavailable")
		return
	}

	instructions := h.receipts.PixInstructions()
	httperrors.Write(w, http.StatusOK, dto.PixResponse{
		Key:      instructions.Key,
		Merchant: instructions.Merchant,
		Payload:  instructions.Payload,
	})
}

func (h *ReceiptHandler) PixQR(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeServiceUnavailable(w, "RECEIPTS_SERVICE_UNAVAILABLE", "receipts service is unavailable")
		return
	}

	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid qr size")
			return
		}
		size = parsed
	}

	png, err := h.receipts.PixQRCode(size)
	if err != nil {
		if errors.Is(err, receiptsvc.ErrValidation) {
			writeNotFound(w, "PIX_UNAVAILABLE", "pix payment is not configured")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to render pix qr")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
