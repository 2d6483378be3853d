package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/ckojak/estudobiblico75/internal/services/auth"
	downloadsvc "github.com/ckojak/estudobiblico75/internal/services/downloads"
	"github.com/ckojak/estudobiblico75/internal/transport/http/dto"
	httperrors "github.com/ckojak/estudobiblico75/internal/transport/http/errors"
)

type DownloadHandler struct {
	downloads *downloadsvc.Service
}

func NewDownloadHandler(downloads *downloadsvc.Service) *DownloadHandler {
	return &DownloadHandler{downloads: downloads}
}

func (h *DownloadHandler) GetURL(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.downloads == nil {
		writeServiceUnavailable(w, "DOWNLOADS_SERVICE_UNAVAILABLE", "downloads service is unavailable")
		return
	}

	var req dto.DownloadURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	link, err := h.downloads.DownloadURL(r.Context(), identity.UserID, req.BookID)
	if err != nil {
		switch {
		case errors.Is(err, downloadsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid download payload")
		case errors.Is(err, downloadsvc.ErrBookNotFound):
			writeNotFound(w, "BOOK_NOT_FOUND", "book not found")
		case errors.Is(err, downloadsvc.ErrNotPurchased):
			writeForbidden(w, "NOT_PURCHASED", "book is not purchased")
		case errors.Is(err, downloadsvc.ErrContentMissing):
			writeNotFound(w, "CONTENT_UNAVAILABLE", "book content is not available")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to sign download url")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.DownloadURLResponse{
		BookID:    link.BookID,
		Title:     link.Title,
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt,
	})
}
