package purchases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	ListByUser(ctx context.Context, userID string) ([]pgrepo.PurchaseRecord, error)
}

type BookStore interface {
	FindByID(ctx context.Context, id string) (pgrepo.BookRecord, error)
}

type Purchase struct {
	ID          string
	BookID      string
	BookTitle   string
	BookSlug    string
	AmountCents int64
	Status      string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

type Service struct {
	store Store
	books BookStore
}

func NewService(store Store, books BookStore) *Service {
	return &Service{store: store, books: books}
}

// ListMine returns the caller's full purchase history, terminal rows
// included, with book titles resolved for display.
func (s *Service) ListMine(ctx context.Context, userID string) ([]Purchase, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrValidation
	}

	recs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}

	titles := make(map[string]pgrepo.BookRecord)
	out := make([]Purchase, 0, len(recs))
	for _, rec := range recs {
		book, ok := titles[rec.BookID]
		if !ok {
			book, err = s.books.FindByID(ctx, rec.BookID)
			if err != nil && !errors.Is(err, pgrepo.ErrBookNotFound) {
				return nil, fmt.Errorf("resolve book %s: %w", rec.BookID, err)
			}
			titles[rec.BookID] = book
		}

		out = append(out, Purchase{
			ID:          rec.ID,
			BookID:      rec.BookID,
			BookTitle:   book.Title,
			BookSlug:    book.Slug,
			AmountCents: rec.AmountPaidCents,
			Status:      rec.Status,
			CreatedAt:   rec.CreatedAt,
			CompletedAt: rec.CompletedAt,
		})
	}

	return out, nil
}
