package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrBookNotFound = errors.New("book not found")
	ErrSlugTaken    = errors.New("book slug already taken")
)

type Store interface {
	ResolveByRef(ctx context.Context, ref string) (pgrepo.BookRecord, error)
	FindByID(ctx context.Context, id string) (pgrepo.BookRecord, error)
	List(ctx context.Context) ([]pgrepo.BookRecord, error)
	Create(ctx context.Context, slug, title, description string, salePriceCents int64) (pgrepo.BookRecord, error)
	Update(ctx context.Context, id, slug, title, description string, salePriceCents int64) (pgrepo.BookRecord, error)
	Delete(ctx context.Context, id string) error
	SetPDFObjectKey(ctx context.Context, id, objectKey string) error
}

type Book struct {
	ID             string
	Slug           string
	Title          string
	Description    string
	SalePriceCents int64
	HasPDF         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Service struct {
	store   Store
	storage ObjectStorage
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Resolve accepts either a book id or its public slug.
func (s *Service) Resolve(ctx context.Context, ref string) (Book, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Book{}, ErrValidation
	}

	rec, err := s.store.ResolveByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, pgrepo.ErrBookNotFound) {
			return Book{}, ErrBookNotFound
		}
		return Book{}, fmt.Errorf("resolve book: %w", err)
	}

	return fromRecord(rec), nil
}

func (s *Service) List(ctx context.Context) ([]Book, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	out := make([]Book, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}

	return out, nil
}

func fromRecord(rec pgrepo.BookRecord) Book {
	return Book{
		ID:             rec.ID,
		Slug:           rec.Slug,
		Title:          rec.Title,
		Description:    rec.Description,
		SalePriceCents: rec.SalePriceCents,
		HasPDF:         rec.PDFObjectKey != nil && *rec.PDFObjectKey != "",
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}
