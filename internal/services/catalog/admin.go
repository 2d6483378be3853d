package catalog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

const maxPDFSize = 50 << 20

type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	PutPDF(ctx context.Context, key string, body io.Reader, size int64) error
}

type BookInput struct {
	Slug           string
	Title          string
	Description    string
	SalePriceCents int64
}

// AttachStorage wires the ebook bucket. Admin PDF upload is disabled
// until it is set.
func (s *Service) AttachStorage(storage ObjectStorage) {
	s.storage = storage
}

func (s *Service) Create(ctx context.Context, in BookInput) (Book, error) {
	if err := validateBookInput(&in); err != nil {
		return Book{}, err
	}

	rec, err := s.store.Create(ctx, in.Slug, in.Title, in.Description, in.SalePriceCents)
	if err != nil {
		if errors.Is(err, pgrepo.ErrSlugTaken) {
			return Book{}, ErrSlugTaken
		}
		return Book{}, fmt.Errorf("create book: %w", err)
	}

	return fromRecord(rec), nil
}

func (s *Service) Update(ctx context.Context, id string, in BookInput) (Book, error) {
	if strings.TrimSpace(id) == "" {
		return Book{}, ErrValidation
	}
	if err := validateBookInput(&in); err != nil {
		return Book{}, err
	}

	rec, err := s.store.Update(ctx, id, in.Slug, in.Title, in.Description, in.SalePriceCents)
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrBookNotFound):
			return Book{}, ErrBookNotFound
		case errors.Is(err, pgrepo.ErrSlugTaken):
			return Book{}, ErrSlugTaken
		}
		return Book{}, fmt.Errorf("update book: %w", err)
	}

	return fromRecord(rec), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrValidation
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, pgrepo.ErrBookNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("delete book: %w", err)
	}

	return nil
}

// UploadPDF stores the book file and binds its object key to the record.
// The stored key is what download links are later signed against.
func (s *Service) UploadPDF(ctx context.Context, bookID, contentType string, body io.Reader, size int64) error {
	if strings.TrimSpace(bookID) == "" || body == nil || size <= 0 {
		return ErrValidation
	}
	if size > maxPDFSize {
		return ErrValidation
	}
	if contentType != "" && contentType != "application/pdf" {
		return ErrValidation
	}
	if s.storage == nil {
		return fmt.Errorf("catalog storage is not configured")
	}

	if _, err := s.store.FindByID(ctx, bookID); err != nil {
		if errors.Is(err, pgrepo.ErrBookNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("find book: %w", err)
	}

	if err := s.storage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	objectKey, err := buildPDFObjectKey(bookID)
	if err != nil {
		return fmt.Errorf("build object key: %w", err)
	}

	if err := s.storage.PutPDF(ctx, objectKey, body, size); err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	if err := s.store.SetPDFObjectKey(ctx, bookID, objectKey); err != nil {
		if errors.Is(err, pgrepo.ErrBookNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("bind pdf key: %w", err)
	}

	return nil
}

func validateBookInput(in *BookInput) error {
	in.Slug = strings.TrimSpace(strings.ToLower(in.Slug))
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Slug == "" || in.Title == "" {
		return ErrValidation
	}
	if strings.ContainsAny(in.Slug, " /\\") {
		return ErrValidation
	}
	if in.SalePriceCents <= 0 {
		return ErrValidation
	}

	return nil
}

func buildPDFObjectKey(bookID string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return fmt.Sprintf("books/%s/%s.pdf", bookID, hex.EncodeToString(buf)), nil
}
