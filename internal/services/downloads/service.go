package downloads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrBookNotFound   = errors.New("book not found")
	ErrNotPurchased   = errors.New("book not purchased")
	ErrContentMissing = errors.New("book content missing")
)

const signedURLTTL = 5 * time.Minute

type BookStore interface {
	ResolveByRef(ctx context.Context, ref string) (pgrepo.BookRecord, error)
}

type PurchaseStore interface {
	FindCompleted(ctx context.Context, userID, bookID string) (pgrepo.PurchaseRecord, error)
}

type ObjectStorage interface {
	ObjectExists(ctx context.Context, key string) (bool, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type DownloadLink struct {
	BookID    string
	Title     string
	URL       string
	ExpiresAt time.Time
}

// Service hands out short-lived download links. Ownership is decided by
// the purchase ledger alone, never by what the client claims.
type Service struct {
	books     BookStore
	purchases PurchaseStore
	storage   ObjectStorage
	urlTTL    time.Duration
	now       func() time.Time
}

func NewService(books BookStore, purchases PurchaseStore, storage ObjectStorage) *Service {
	return &Service{
		books:     books,
		purchases: purchases,
		storage:   storage,
		urlTTL:    signedURLTTL,
		now:       time.Now,
	}
}

func (s *Service) DownloadURL(ctx context.Context, userID, bookRef string) (DownloadLink, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(bookRef) == "" {
		return DownloadLink{}, ErrValidation
	}
	if s.books == nil || s.purchases == nil || s.storage == nil {
		return DownloadLink{}, fmt.Errorf("downloads dependencies are not configured")
	}

	book, err := s.books.ResolveByRef(ctx, bookRef)
	if err != nil {
		if errors.Is(err, pgrepo.ErrBookNotFound) {
			return DownloadLink{}, ErrBookNotFound
		}
		return DownloadLink{}, fmt.Errorf("resolve book: %w", err)
	}

	if _, err := s.purchases.FindCompleted(ctx, userID, book.ID); err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return DownloadLink{}, ErrNotPurchased
		}
		return DownloadLink{}, fmt.Errorf("check entitlement: %w", err)
	}

	if book.PDFObjectKey == nil || *book.PDFObjectKey == "" {
		return DownloadLink{}, ErrContentMissing
	}

	exists, err := s.storage.ObjectExists(ctx, *book.PDFObjectKey)
	if err != nil {
		return DownloadLink{}, fmt.Errorf("stat book object: %w", err)
	}
	if !exists {
		return DownloadLink{}, ErrContentMissing
	}

	url, err := s.storage.PresignGet(ctx, *book.PDFObjectKey, s.urlTTL)
	if err != nil {
		return DownloadLink{}, fmt.Errorf("presign download: %w", err)
	}

	return DownloadLink{
		BookID:    book.ID,
		Title:     book.Title,
		URL:       url,
		ExpiresAt: s.now().UTC().Add(s.urlTTL),
	}, nil
}
