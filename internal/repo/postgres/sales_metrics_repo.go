package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DailySalesRow struct {
	Day         time.Time
	Orders      int64
	AmountCents int64
	FeeCents    int64
}

type SalesTotals struct {
	Completed    int64
	Pending      int64
	Rejected     int64
	Failed       int64
	RevenueCents int64
	FeeCents     int64
}

type SalesMetricsRepo struct {
	pool *pgxpool.Pool
}

func NewSalesMetricsRepo(pool *pgxpool.Pool) *SalesMetricsRepo {
	return &SalesMetricsRepo{pool: pool}
}

func (r *SalesMetricsRepo) ListDaily(ctx context.Context, from, to time.Time) ([]DailySalesRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('day', completed_at) AS day,
			COUNT(*),
			COALESCE(SUM(amount_paid_cents), 0),
			COALESCE(SUM(service_fee_cents), 0)
		FROM purchases
		WHERE status = $1 AND completed_at >= $2 AND completed_at < $3
		GROUP BY day
		ORDER BY day ASC`,
		PurchaseStatusCompleted, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily sales: %w", err)
	}
	defer rows.Close()

	var out []DailySalesRow
	for rows.Next() {
		var row DailySalesRow
		if err := rows.Scan(&row.Day, &row.Orders, &row.AmountCents, &row.FeeCents); err != nil {
			return nil, fmt.Errorf("scan daily sales row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily sales: %w", err)
	}

	return out, nil
}

func (r *SalesMetricsRepo) Totals(ctx context.Context) (SalesTotals, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*),
			COALESCE(SUM(amount_paid_cents), 0),
			COALESCE(SUM(service_fee_cents), 0)
		FROM purchases
		GROUP BY status`)
	if err != nil {
		return SalesTotals{}, fmt.Errorf("query sales totals: %w", err)
	}
	defer rows.Close()

	var totals SalesTotals
	for rows.Next() {
		var (
			status string
			count  int64
			amount int64
			fees   int64
		)
		if err := rows.Scan(&status, &count, &amount, &fees); err != nil {
			return SalesTotals{}, fmt.Errorf("scan sales totals row: %w", err)
		}

		switch status {
		case PurchaseStatusCompleted:
			totals.Completed = count
			totals.RevenueCents = amount
			totals.FeeCents = fees
		case PurchaseStatusPending:
			totals.Pending = count
		case PurchaseStatusRejected:
			totals.Rejected = count
		case PurchaseStatusFailed:
			totals.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return SalesTotals{}, fmt.Errorf("iterate sales totals: %w", err)
	}

	return totals, nil
}
