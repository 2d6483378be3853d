package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	catalogsvc "github.com/ckojak/estudobiblico75/internal/services/catalog"
	"github.com/ckojak/estudobiblico75/internal/transport/http/dto"
	httperrors "github.com/ckojak/estudobiblico75/internal/transport/http/errors"
)

type CatalogHandler struct {
	catalog *catalogsvc.Service
}

func NewCatalogHandler(catalog *catalogsvc.Service) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	books, err := h.catalog.List(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list books")
		return
	}

	resp := dto.BookListResponse{Books: make([]dto.BookResponse, 0, len(books))}
	for _, book := range books {
		resp.Books = append(resp.Books, bookResponse(book))
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(w, "CATALOG_SERVICE_UNAVAILABLE", "catalog service is unavailable")
		return
	}

	book, err := h.catalog.Resolve(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		switch {
		case errors.Is(err, catalogsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid book reference")
		case errors.Is(err, catalogsvc.ErrBookNotFound):
			writeNotFound(w, "BOOK_NOT_FOUND", "book not found")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to resolve book")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, bookResponse(book))
}

func bookResponse(book catalogsvc.Book) dto.BookResponse {
	return dto.BookResponse{
		ID:             book.ID,
		Slug:           book.Slug,
		Title:          book.Title,
		Description:    book.Description,
		SalePriceCents: book.SalePriceCents,
		HasPDF:         book.HasPDF,
		CreatedAt:      book.CreatedAt,
	}
}
