package catalog

import (
	"context"
	"errors"
	"io"
	"testing"

	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

type stubStore struct {
	book      pgrepo.BookRecord
	resolved  string
	err       error
	createErr error
}

func (s *stubStore) ResolveByRef(_ context.Context, ref string) (pgrepo.BookRecord, error) {
	s.resolved = ref
	return s.book, s.err
}

func (s *stubStore) FindByID(_ context.Context, _ string) (pgrepo.BookRecord, error) {
	return s.book, s.err
}

func (s *stubStore) List(_ context.Context) ([]pgrepo.BookRecord, error) {
	return []pgrepo.BookRecord{s.book}, s.err
}

func (s *stubStore) Create(_ context.Context, slug, title, description string, salePriceCents int64) (pgrepo.BookRecord, error) {
	if s.createErr != nil {
		return pgrepo.BookRecord{}, s.createErr
	}
	return pgrepo.BookRecord{
		ID: "b-new", Slug: slug, Title: title,
		Description: description, SalePriceCents: salePriceCents,
	}, nil
}

func (s *stubStore) Update(_ context.Context, id, slug, title, description string, salePriceCents int64) (pgrepo.BookRecord, error) {
	return pgrepo.BookRecord{
		ID: id, Slug: slug, Title: title,
		Description: description, SalePriceCents: salePriceCents,
	}, s.err
}

func (s *stubStore) Delete(_ context.Context, _ string) error { return s.err }

func (s *stubStore) SetPDFObjectKey(_ context.Context, _, _ string) error { return s.err }

func TestResolveMapsNotFound(t *testing.T) {
	svc := NewService(&stubStore{err: pgrepo.ErrBookNotFound})

	if _, err := svc.Resolve(context.Background(), "missing"); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}

	if _, err := svc.Resolve(context.Background(), "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank ref, got %v", err)
	}
}

func TestResolveFlagsAvailablePDF(t *testing.T) {
	key := "books/b-1/x.pdf"
	store := &stubStore{book: pgrepo.BookRecord{ID: "b-1", Slug: "exodo", Title: "Exodo", PDFObjectKey: &key}}
	svc := NewService(store)

	book, err := svc.Resolve(context.Background(), "exodo")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !book.HasPDF {
		t.Fatalf("expected HasPDF for stored object key")
	}
	if store.resolved != "exodo" {
		t.Fatalf("unexpected resolved ref: %s", store.resolved)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(&stubStore{})

	cases := []BookInput{
		{Slug: "", Title: "T", SalePriceCents: 100},
		{Slug: "ok", Title: "", SalePriceCents: 100},
		{Slug: "has space", Title: "T", SalePriceCents: 100},
		{Slug: "ok", Title: "T", SalePriceCents: 0},
	}
	for i, in := range cases {
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}

	book, err := svc.Create(context.Background(), BookInput{
		Slug: "  Novo-Livro ", Title: " Novo Livro ", SalePriceCents: 1500,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if book.Slug != "novo-livro" || book.Title != "Novo Livro" {
		t.Fatalf("input must be normalized: %+v", book)
	}
}

func TestCreateMapsSlugConflict(t *testing.T) {
	svc := NewService(&stubStore{createErr: pgrepo.ErrSlugTaken})

	_, err := svc.Create(context.Background(), BookInput{Slug: "dup", Title: "T", SalePriceCents: 100})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestUploadPDFChecksFile(t *testing.T) {
	svc := NewService(&stubStore{book: pgrepo.BookRecord{ID: "b-1"}})
	svc.AttachStorage(&noopStorage{})

	err := svc.UploadPDF(context.Background(), "b-1", "image/png", nil, 10)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for nil body, got %v", err)
	}
}

type noopStorage struct{}

func (noopStorage) EnsureBucket(_ context.Context) error { return nil }

func (noopStorage) PutPDF(_ context.Context, _ string, _ io.Reader, _ int64) error {
	return nil
}
