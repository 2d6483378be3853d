package handlers

import (
	"net/http"

	authsvc "github.com/ckojak/estudobiblico75/internal/services/auth"
	purchasesvc "github.com/ckojak/estudobiblico75/internal/services/purchases"
	"github.com/ckojak/estudobiblico75/internal/transport/http/dto"
	httperrors "github.com/ckojak/estudobiblico75/internal/transport/http/errors"
)

type PurchasesHandler struct {
	purchases *purchasesvc.Service
}

func NewPurchasesHandler(purchases *purchasesvc.Service) *PurchasesHandler {
	return &PurchasesHandler{purchases: purchases}
}

func (h *PurchasesHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.purchases == nil {
		writeServiceUnavailable(w, "PURCHASES_SERVICE_UNAVAILABLE", "purchases service is unavailable")
		return
	}

	items, err := h.purchases.ListMine(r.Context(), identity.UserID)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list purchases")
		return
	}

	resp := dto.PurchaseListResponse{Purchases: make([]dto.PurchaseResponse, 0, len(items))}
	for _, item := range items {
		resp.Purchases = append(resp.Purchases, dto.PurchaseResponse{
			ID:          item.ID,
			BookID:      item.BookID,
			BookTitle:   item.BookTitle,
			BookSlug:    item.BookSlug,
			AmountCents: item.AmountCents,
			Status:      item.Status,
			CreatedAt:   item.CreatedAt,
			CompletedAt: item.CompletedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}
