package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	catalogsvc "github.com/ckojak/estudobiblico75/internal/services/catalog"
	receiptsvc "github.com/ckojak/estudobiblico75/internal/services/receipts"
	salessvc "github.com/ckojak/estudobiblico75/internal/services/sales"
	"github.com/ckojak/estudobiblico75/internal/transport/http/dto"
	httperrors "github.com/ckojak/estudobiblico75/internal/transport/http/errors"
)

type AdminHandler struct {
	receipts *receiptsvc.Service
	catalog  *catalogsvc.Service
	sales    *salessvc.Service
}

func NewAdminHandler(receipts *receiptsvc.Service, catalog *catalogsvc.Service) *AdminHandler {
	return &AdminHandler{receipts: receipts, catalog: catalog}
}

// AttachSales enables the analytics endpoints.
func (h *AdminHandler) AttachSales(sales *salessvc.Service) {
	h.sales = sales
}

func (h *AdminHandler) ReceiptsPending(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeServiceUnavailable(w, "RECEIPTS_SERVICE_UNAVAILABLE", "receipts service is unavailable")
		return
	}

	pending, err := h.receipts.ListPending(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list pending receipts")
		return
	}

	resp := dto.PendingReceiptListResponse{Receipts: make([]dto.PendingReceiptResponse, 0, len(pending))}
	for _, item := range pending {
		resp.Receipts = append(resp.Receipts, dto.PendingReceiptResponse{
			PurchaseID:  item.PurchaseID,
			UserID:      item.UserID,
			BookID:      item.BookID,
			AmountCents: item.AmountCents,
			ReceiptURL:  item.ReceiptURL,
			CreatedAt:   item.CreatedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}

// ReceiptApprove takes an optional body with a replacement receipt
// pointer, an empty body approves the stored one.
func (h *AdminHandler) ReceiptApprove(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeServiceUnavailable(w, "RECEIPTS_SERVICE_UNAVAILABLE", "receipts service is unavailable")
		return
	}

	var req dto.ApproveReceiptRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	review, err := h.receipts.Approve(r.Context(), chi.URLParam(r, "id"), req.ReceiptObjectKey)
	writeReview(w, review, err)
}

func (h *AdminHandler) ReceiptReject(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeServiceUnavailable(w, "RECEIPTS_SERVICE_UNAVAILABLE", "receipts service is unavailable")
		return
	}

	review, err := h.receipts.Reject(r.Context(), chi.URLParam(r, "id"))
	writeReview(w, review, err)
}

func writeReview(w http.ResponseWriter, review receiptsvc.Review, err error) {
	if err != nil {
		switch {
		case errors.Is(err, receiptsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase id")
		case errors.Is(err, receiptsvc.ErrPurchaseNotFound):
			writeNotFound(w, "PURCHASE_NOT_FOUND", "purchase not found")
		case errors.Is(err, receiptsvc.ErrAlreadyOwned):
			writeConflict(w, "ALREADY_PURCHASED", "buyer already owns this book")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to review receipt")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ReviewResponse{
		PurchaseID: review.PurchaseID,
		Status:     review.Status,
		Changed:    review.Changed,
	})
}

func (h *AdminHandler) SalesDaily(w http.ResponseWriter, r *http.Request) {
	if h.sales == nil {
		writeServiceUnavailable(w, "SALES_SERVICE_UNAVAILABLE", "sales analytics is unavailable")
		return
	}

	from, ok := parseDateParam(r, "from")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid from date")
		return
	}
	to, ok := parseDateParam(r, "to")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid to date")
		return
	}

	points, err := h.sales.Daily(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, salessvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid date range")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load daily sales")
		return
	}

	resp := dto.SalesDailyResponse{Points: make([]dto.SalesDailyPoint, 0, len(points))}
	for _, point := range points {
		resp.Points = append(resp.Points, dto.SalesDailyPoint{
			Day:         point.Day.Format("2006-01-02"),
			Orders:      point.Orders,
			AmountCents: point.AmountCents,
			FeeCents:    point.FeeCents,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func (h *AdminHandler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	if h.sales == nil {
		writeServiceUnavailable(w, "SALES_SERVICE_UNAVAILABLE", "sales analytics is unavailable")
		return
	}

	summary, err := h.sales.Summary(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load sales summary")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SalesSummaryResponse{
		CompletedOrders: summary.CompletedOrders,
		PendingOrders:   summary.PendingOrders,
		RejectedOrders:  summary.RejectedOrders,
		FailedOrders:    summary.FailedOrders,
		RevenueCents:    summary.RevenueCents,
		FeeCents:        summary.FeeCents,
	})
}

func (h *AdminHandler) BookCreate(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	var req dto.BookCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	book, err := h.catalog.Create(r.Context(), catalogsvc.BookInput{
		Slug:           req.Slug,
		Title:          req.Title,
		Description:    req.Description,
		SalePriceCents: req.SalePriceCents,
	})
	if err != nil {
		writeCatalogError(w, err, "failed to create book")
		return
	}

	httperrors.Write(w, http.StatusCreated, bookResponse(book))
}

func (h *AdminHandler) BookUpdate(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	var req dto.BookUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	book, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), catalogsvc.BookInput{
		Slug:           req.Slug,
		Title:          req.Title,
		Description:    req.Description,
		SalePriceCents: req.SalePriceCents,
	})
	if err != nil {
		writeCatalogError(w, err, "failed to update book")
		return
	}

	httperrors.Write(w, http.StatusOK, bookResponse(book))
}

func (h *AdminHandler) BookDelete(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeCatalogError(w, err, "failed to delete book")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) BookUploadPDF(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "pdf file is required")
		return
	}
	defer func() { _ = file.Close() }()

	err = h.catalog.UploadPDF(r.Context(), chi.URLParam(r, "id"),
		header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeCatalogError(w, err, "failed to upload book pdf")
		return
	}

	httperrors.Write(w, http.StatusOK, map[string]bool{"uploaded": true})
}

func writeCatalogError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, catalogsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "invalid book payload")
	case errors.Is(err, catalogsvc.ErrBookNotFound):
		writeNotFound(w, "BOOK_NOT_FOUND", "book not found")
	case errors.Is(err, catalogsvc.ErrSlugTaken):
		writeConflict(w, "SLUG_TAKEN", "book slug already taken")
	default:
		writeInternal(w, "INTERNAL_ERROR", fallback)
	}
}

func parseDateParam(r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}

	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}

	return parsed.UTC(), true
}
