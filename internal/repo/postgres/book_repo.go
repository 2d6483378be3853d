package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrSlugTaken    = errors.New("book slug already taken")
)

type BookRecord struct {
	ID             string
	Slug           string
	Title          string
	Description    string
	SalePriceCents int64
	PDFObjectKey   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type BookRepo struct {
	pool *pgxpool.Pool
}

func NewBookRepo(pool *pgxpool.Pool) *BookRepo {
	return &BookRepo{pool: pool}
}

const bookColumns = `id, slug, title, description, sale_price_cents, pdf_object_key, created_at, updated_at`

// ResolveByRef accepts either a book id or its slug.
func (r *BookRepo) ResolveByRef(ctx context.Context, ref string) (BookRecord, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE slug = $1`
	if _, err := uuid.Parse(ref); err == nil {
		query = `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	}

	rec, err := scanBook(r.pool.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BookRecord{}, ErrBookNotFound
		}
		return BookRecord{}, fmt.Errorf("resolve book: %w", err)
	}

	return rec, nil
}

func (r *BookRepo) FindByID(ctx context.Context, id string) (BookRecord, error) {
	rec, err := scanBook(r.pool.QueryRow(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BookRecord{}, ErrBookNotFound
		}
		return BookRecord{}, fmt.Errorf("find book: %w", err)
	}

	return rec, nil
}

func (r *BookRepo) List(ctx context.Context) ([]BookRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var out []BookRecord
	for rows.Next() {
		rec, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}

	return out, nil
}

func (r *BookRepo) Create(ctx context.Context, slug, title, description string, salePriceCents int64) (BookRecord, error) {
	rec, err := scanBook(r.pool.QueryRow(ctx, `
		INSERT INTO books (id, slug, title, description, sale_price_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+bookColumns,
		uuid.NewString(), slug, title, description, salePriceCents))
	if err != nil {
		if isUniqueViolation(err) {
			return BookRecord{}, ErrSlugTaken
		}
		return BookRecord{}, fmt.Errorf("create book: %w", err)
	}

	return rec, nil
}

func (r *BookRepo) Update(ctx context.Context, id, slug, title, description string, salePriceCents int64) (BookRecord, error) {
	rec, err := scanBook(r.pool.QueryRow(ctx, `
		UPDATE books
		SET slug = $2, title = $3, description = $4, sale_price_cents = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+bookColumns,
		id, slug, title, description, salePriceCents))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BookRecord{}, ErrBookNotFound
		}
		if isUniqueViolation(err) {
			return BookRecord{}, ErrSlugTaken
		}
		return BookRecord{}, fmt.Errorf("update book: %w", err)
	}

	return rec, nil
}

func (r *BookRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookNotFound
	}

	return nil
}

func (r *BookRepo) SetPDFObjectKey(ctx context.Context, id, objectKey string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE books SET pdf_object_key = $2, updated_at = now() WHERE id = $1`,
		id, objectKey)
	if err != nil {
		return fmt.Errorf("set book pdf key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookNotFound
	}

	return nil
}

func scanBook(row pgx.Row) (BookRecord, error) {
	var rec BookRecord
	err := row.Scan(
		&rec.ID,
		&rec.Slug,
		&rec.Title,
		&rec.Description,
		&rec.SalePriceCents,
		&rec.PDFObjectKey,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
