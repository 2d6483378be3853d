package receipts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrBookNotFound     = errors.New("book not found")
	ErrAlreadyOwned     = errors.New("book already owned")
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrUnsupportedFile  = errors.New("unsupported receipt file type")
	ErrFileTooLarge     = errors.New("receipt file too large")
)

const (
	maxReceiptSize = 5 << 20
	receiptURLTTL  = 5 * time.Minute
)

var receiptExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

type BookStore interface {
	ResolveByRef(ctx context.Context, ref string) (pgrepo.BookRecord, error)
}

type PurchaseStore interface {
	CreatePendingReceipt(ctx context.Context, userID, bookID string, amountCents, feeCents int64, receiptKey string) (pgrepo.PurchaseRecord, bool, error)
	ListByStatus(ctx context.Context, status string) ([]pgrepo.PurchaseRecord, error)
	Approve(ctx context.Context, purchaseID string, receiptKey *string, now time.Time) (pgrepo.PurchaseRecord, bool, error)
	Reject(ctx context.Context, purchaseID string) (pgrepo.PurchaseRecord, bool, error)
}

type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	PutReceipt(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Notifier interface {
	SendText(chatID int64, text string) error
}

type PixConfig struct {
	Key      string
	Merchant string
	Payload  string
}

type Submission struct {
	PurchaseID string
	Status     string
	Created    bool
}

type PendingReceipt struct {
	PurchaseID  string
	UserID      string
	BookID      string
	AmountCents int64
	ReceiptURL  string
	CreatedAt   time.Time
}

type Review struct {
	PurchaseID string
	Status     string
	Changed    bool
}

// Service runs the manual PIX lane: buyers upload a transfer receipt,
// an operator approves or rejects it. Approval is what grants the
// entitlement, the upload alone never does.
type Service struct {
	books          BookStore
	purchases      PurchaseStore
	storage        ObjectStorage
	notifier       Notifier
	reviewerChatID int64
	pix            PixConfig
	feeCents       int64
	now            func() time.Time
}

func NewService(books BookStore, purchases PurchaseStore, storage ObjectStorage, pix PixConfig, feeCents int64) *Service {
	return &Service{
		books:     books,
		purchases: purchases,
		storage:   storage,
		pix:       pix,
		feeCents:  feeCents,
		now:       time.Now,
	}
}

// AttachNotifier enables operator pings on new submissions. Review still
// works without it.
func (s *Service) AttachNotifier(notifier Notifier, reviewerChatID int64) {
	s.notifier = notifier
	s.reviewerChatID = reviewerChatID
}

func (s *Service) Submit(ctx context.Context, userID, email, bookRef, contentType string, body io.Reader, size int64) (Submission, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(bookRef) == "" || body == nil {
		return Submission{}, ErrValidation
	}
	if size <= 0 {
		return Submission{}, ErrValidation
	}
	if size > maxReceiptSize {
		return Submission{}, ErrFileTooLarge
	}

	ext, ok := receiptExtensions[normalizeContentType(contentType)]
	if !ok {
		return Submission{}, ErrUnsupportedFile
	}

	book, err := s.books.ResolveByRef(ctx, bookRef)
	if err != nil {
		if errors.Is(err, pgrepo.ErrBookNotFound) {
			return Submission{}, ErrBookNotFound
		}
		return Submission{}, fmt.Errorf("resolve book: %w", err)
	}

	if err := s.storage.EnsureBucket(ctx); err != nil {
		return Submission{}, fmt.Errorf("ensure bucket: %w", err)
	}

	objectKey, err := buildReceiptObjectKey(userID, book.ID, ext)
	if err != nil {
		return Submission{}, fmt.Errorf("build object key: %w", err)
	}

	if err := s.storage.PutReceipt(ctx, objectKey, body, size, normalizeContentType(contentType)); err != nil {
		return Submission{}, fmt.Errorf("put receipt: %w", err)
	}

	// The row records the catalog price; the service fee stays in its own
	// column. The buyer still transfers price plus fee.
	rec, created, err := s.purchases.CreatePendingReceipt(ctx, userID, book.ID, book.SalePriceCents, s.feeCents, objectKey)
	if err != nil {
		if errors.Is(err, pgrepo.ErrAlreadyOwned) {
			return Submission{}, ErrAlreadyOwned
		}
		return Submission{}, fmt.Errorf("open pending purchase: %w", err)
	}

	// Review must not depend on the notifier being up.
	if s.notifier != nil && s.reviewerChatID != 0 {
		total := book.SalePriceCents + s.feeCents
		_ = s.notifier.SendText(s.reviewerChatID, fmt.Sprintf(
			"Novo comprovante PIX\nLivro: %s\nComprador: %s\nValor: R$ %d,%02d\nPedido: %s",
			book.Title, email, total/100, total%100, rec.ID))
	}

	return Submission{
		PurchaseID: rec.ID,
		Status:     rec.Status,
		Created:    created,
	}, nil
}

type Instructions struct {
	Key      string
	Merchant string
	Payload  string
}

func (s *Service) PixInstructions() Instructions {
	payload := s.pix.Payload
	if payload == "" {
		payload = s.pix.Key
	}

	return Instructions{
		Key:      s.pix.Key,
		Merchant: s.pix.Merchant,
		Payload:  payload,
	}
}

// ListPending returns submissions awaiting review, each with a
// short-lived link to the uploaded receipt.
func (s *Service) ListPending(ctx context.Context) ([]PendingReceipt, error) {
	recs, err := s.purchases.ListByStatus(ctx, pgrepo.PurchaseStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending purchases: %w", err)
	}

	out := make([]PendingReceipt, 0, len(recs))
	for _, rec := range recs {
		if rec.ReceiptObjectKey == nil || *rec.ReceiptObjectKey == "" {
			continue
		}

		url, err := s.storage.PresignGet(ctx, *rec.ReceiptObjectKey, receiptURLTTL)
		if err != nil {
			return nil, fmt.Errorf("presign receipt: %w", err)
		}

		out = append(out, PendingReceipt{
			PurchaseID:  rec.ID,
			UserID:      rec.UserID,
			BookID:      rec.BookID,
			AmountCents: rec.AmountPaidCents,
			ReceiptURL:  url,
			CreatedAt:   rec.CreatedAt,
		})
	}

	return out, nil
}

// Approve completes the pending purchase. A non-empty receiptKey replaces
// the stored receipt pointer, used when the reviewer corrects the file.
func (s *Service) Approve(ctx context.Context, purchaseID, receiptKey string) (Review, error) {
	if strings.TrimSpace(purchaseID) == "" {
		return Review{}, ErrValidation
	}

	var keyPtr *string
	if key := strings.TrimSpace(receiptKey); key != "" {
		keyPtr = &key
	}

	rec, changed, err := s.purchases.Approve(ctx, purchaseID, keyPtr, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrPurchaseNotFound):
			return Review{}, ErrPurchaseNotFound
		case errors.Is(err, pgrepo.ErrAlreadyOwned):
			return Review{}, ErrAlreadyOwned
		}
		return Review{}, fmt.Errorf("approve purchase: %w", err)
	}

	return Review{PurchaseID: rec.ID, Status: rec.Status, Changed: changed}, nil
}

func (s *Service) Reject(ctx context.Context, purchaseID string) (Review, error) {
	if strings.TrimSpace(purchaseID) == "" {
		return Review{}, ErrValidation
	}

	rec, changed, err := s.purchases.Reject(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return Review{}, ErrPurchaseNotFound
		}
		return Review{}, fmt.Errorf("reject purchase: %w", err)
	}

	return Review{PurchaseID: rec.ID, Status: rec.Status, Changed: changed}, nil
}

func normalizeContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	return contentType
}

func buildReceiptObjectKey(userID, bookID, ext string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return fmt.Sprintf("receipts/%s/%s/%s%s", userID, bookID, hex.EncodeToString(buf), ext), nil
}
