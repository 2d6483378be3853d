package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusRejected  = "rejected"
	PurchaseStatusFailed    = "failed"
)

var (
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrAlreadyOwned     = errors.New("book already owned")
)

type PurchaseRecord struct {
	ID               string
	UserID           string
	BookID           string
	AmountPaidCents  int64
	ServiceFeeCents  int64
	Status           string
	PaymentReference *string
	ReceiptObjectKey *string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

type SettleInput struct {
	UserID           string
	BookID           string
	AmountPaidCents  int64
	ServiceFeeCents  int64
	PaymentReference string
	Now              time.Time
}

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

const purchaseColumns = `id, user_id, book_id, amount_paid_cents, service_fee_cents, status,
	payment_reference, receipt_object_key, created_at, completed_at`

// SettleCompleted records a confirmed payment exactly once. It promotes a
// pending row for the same user and book when one exists, otherwise it
// inserts a fresh completed row. Replays of the same payment reference and
// races against a concurrent settle both resolve to the already-settled row
// with applied=false. The unique indexes on payment_reference and on
// completed (user_id, book_id) are the coordination points.
func (r *PurchaseRepo) SettleCompleted(ctx context.Context, in SettleInput) (PurchaseRecord, bool, error) {
	var (
		rec     PurchaseRecord
		applied bool
	)

	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		existing, err := scanPurchase(tx.QueryRow(ctx,
			`SELECT `+purchaseColumns+` FROM purchases WHERE payment_reference = $1`,
			in.PaymentReference))
		if err == nil {
			rec = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("find purchase by reference: %w", err)
		}

		promoted, err := scanPurchase(tx.QueryRow(ctx, `
			UPDATE purchases
			SET status = $4, payment_reference = $5, amount_paid_cents = $6,
				service_fee_cents = $7, completed_at = $8
			WHERE id = (
				SELECT id FROM purchases
				WHERE user_id = $1 AND book_id = $2 AND status = $3
				ORDER BY created_at ASC
				LIMIT 1
				FOR UPDATE
			)
			RETURNING `+purchaseColumns,
			in.UserID, in.BookID, PurchaseStatusPending,
			PurchaseStatusCompleted, in.PaymentReference,
			in.AmountPaidCents, in.ServiceFeeCents, in.Now))
		if err == nil {
			rec = promoted
			applied = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) && !isUniqueViolation(err) {
			return fmt.Errorf("promote pending purchase: %w", err)
		}
		if isUniqueViolation(err) {
			return errSettleLost
		}

		inserted, err := scanPurchase(tx.QueryRow(ctx, `
			INSERT INTO purchases (id, user_id, book_id, amount_paid_cents,
				service_fee_cents, status, payment_reference, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+purchaseColumns,
			uuid.NewString(), in.UserID, in.BookID,
			in.AmountPaidCents, in.ServiceFeeCents,
			PurchaseStatusCompleted, in.PaymentReference, in.Now))
		if err != nil {
			if isUniqueViolation(err) {
				return errSettleLost
			}
			return fmt.Errorf("insert completed purchase: %w", err)
		}

		rec = inserted
		applied = true
		return nil
	})
	if errors.Is(err, errSettleLost) {
		// Another writer settled this payment or entitlement first.
		return r.findSettled(ctx, in)
	}
	if err != nil {
		return PurchaseRecord{}, false, err
	}

	return rec, applied, nil
}

var errSettleLost = errors.New("settle lost race")

func (r *PurchaseRepo) findSettled(ctx context.Context, in SettleInput) (PurchaseRecord, bool, error) {
	rec, err := r.FindByPaymentReference(ctx, in.PaymentReference)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, ErrPurchaseNotFound) {
		return PurchaseRecord{}, false, err
	}

	rec, err = r.FindCompleted(ctx, in.UserID, in.BookID)
	if err != nil {
		return PurchaseRecord{}, false, err
	}

	return rec, false, nil
}

// CreatePendingReceipt opens or refreshes a manual purchase awaiting review.
// A repeated submission for the same user and book replaces the receipt on
// the open pending row instead of opening a second one.
func (r *PurchaseRepo) CreatePendingReceipt(ctx context.Context, userID, bookID string, amountCents, feeCents int64, receiptKey string) (PurchaseRecord, bool, error) {
	var (
		rec     PurchaseRecord
		created bool
	)

	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := scanPurchase(tx.QueryRow(ctx,
			`SELECT `+purchaseColumns+` FROM purchases
			WHERE user_id = $1 AND book_id = $2 AND status = $3`,
			userID, bookID, PurchaseStatusCompleted))
		if err == nil {
			return ErrAlreadyOwned
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check completed purchase: %w", err)
		}

		refreshed, err := scanPurchase(tx.QueryRow(ctx, `
			UPDATE purchases
			SET receipt_object_key = $4, amount_paid_cents = $5, service_fee_cents = $6
			WHERE id = (
				SELECT id FROM purchases
				WHERE user_id = $1 AND book_id = $2 AND status = $3
				ORDER BY created_at ASC
				LIMIT 1
				FOR UPDATE
			)
			RETURNING `+purchaseColumns,
			userID, bookID, PurchaseStatusPending,
			receiptKey, amountCents, feeCents))
		if err == nil {
			rec = refreshed
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("refresh pending receipt: %w", err)
		}

		inserted, err := scanPurchase(tx.QueryRow(ctx, `
			INSERT INTO purchases (id, user_id, book_id, amount_paid_cents,
				service_fee_cents, status, receipt_object_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+purchaseColumns,
			uuid.NewString(), userID, bookID, amountCents, feeCents,
			PurchaseStatusPending, receiptKey))
		if err != nil {
			return fmt.Errorf("insert pending receipt: %w", err)
		}

		rec = inserted
		created = true
		return nil
	})
	if err != nil {
		return PurchaseRecord{}, false, err
	}

	return rec, created, nil
}

// MarkFailed closes the open pending purchase for the user and book.
// Completed, rejected and failed rows are never touched.
func (r *PurchaseRepo) MarkFailed(ctx context.Context, userID, bookID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE purchases SET status = $4
		WHERE user_id = $1 AND book_id = $2 AND status = $3`,
		userID, bookID, PurchaseStatusPending, PurchaseStatusFailed)
	if err != nil {
		return false, fmt.Errorf("mark purchase failed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Approve completes a pending manual purchase, optionally rebinding the
// receipt pointer when the reviewer supplies one. Approving a purchase that
// is already terminal returns the row unchanged with applied=false.
func (r *PurchaseRepo) Approve(ctx context.Context, purchaseID string, receiptKey *string, now time.Time) (PurchaseRecord, bool, error) {
	rec, err := scanPurchase(r.pool.QueryRow(ctx, `
		UPDATE purchases
		SET status = $2, completed_at = $3,
			receipt_object_key = COALESCE($4, receipt_object_key)
		WHERE id = $1 AND status = $5
		RETURNING `+purchaseColumns,
		purchaseID, PurchaseStatusCompleted, now, receiptKey, PurchaseStatusPending))
	if err == nil {
		return rec, true, nil
	}
	if isUniqueViolation(err) {
		return PurchaseRecord{}, false, ErrAlreadyOwned
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRecord{}, false, fmt.Errorf("approve purchase: %w", err)
	}

	rec, err = r.FindByID(ctx, purchaseID)
	if err != nil {
		return PurchaseRecord{}, false, err
	}

	return rec, false, nil
}

// Reject marks a pending manual purchase rejected, keeping the receipt
// pointer for audit. Terminal rows are left untouched.
func (r *PurchaseRepo) Reject(ctx context.Context, purchaseID string) (PurchaseRecord, bool, error) {
	rec, err := scanPurchase(r.pool.QueryRow(ctx, `
		UPDATE purchases
		SET status = $2
		WHERE id = $1 AND status = $3
		RETURNING `+purchaseColumns,
		purchaseID, PurchaseStatusRejected, PurchaseStatusPending))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRecord{}, false, fmt.Errorf("reject purchase: %w", err)
	}

	rec, err = r.FindByID(ctx, purchaseID)
	if err != nil {
		return PurchaseRecord{}, false, err
	}

	return rec, false, nil
}

func (r *PurchaseRepo) FindByID(ctx context.Context, id string) (PurchaseRecord, error) {
	rec, err := scanPurchase(r.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase: %w", err)
	}

	return rec, nil
}

func (r *PurchaseRepo) FindByPaymentReference(ctx context.Context, reference string) (PurchaseRecord, error) {
	rec, err := scanPurchase(r.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE payment_reference = $1`,
		reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by reference: %w", err)
	}

	return rec, nil
}

func (r *PurchaseRepo) FindCompleted(ctx context.Context, userID, bookID string) (PurchaseRecord, error) {
	rec, err := scanPurchase(r.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases
		WHERE user_id = $1 AND book_id = $2 AND status = $3`,
		userID, bookID, PurchaseStatusCompleted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find completed purchase: %w", err)
	}

	return rec, nil
}

func (r *PurchaseRepo) ListByUser(ctx context.Context, userID string) ([]PurchaseRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	return collectPurchases(rows)
}

func (r *PurchaseRepo) ListByStatus(ctx context.Context, status string) ([]PurchaseRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases
		WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("list purchases by status: %w", err)
	}
	defer rows.Close()

	return collectPurchases(rows)
}

func collectPurchases(rows pgx.Rows) ([]PurchaseRecord, error) {
	var out []PurchaseRecord
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}

	return out, nil
}

func scanPurchase(row pgx.Row) (PurchaseRecord, error) {
	var rec PurchaseRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.BookID,
		&rec.AmountPaidCents,
		&rec.ServiceFeeCents,
		&rec.Status,
		&rec.PaymentReference,
		&rec.ReceiptObjectKey,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)
	return rec, err
}
