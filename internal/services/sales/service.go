package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgrepo "github.com/ckojak/estudobiblico75/internal/repo/postgres"
)

var ErrValidation = errors.New("validation error")

const defaultRangeDays = 30

type MetricsStore interface {
	ListDaily(ctx context.Context, from, to time.Time) ([]pgrepo.DailySalesRow, error)
	Totals(ctx context.Context) (pgrepo.SalesTotals, error)
}

type DailyPoint struct {
	Day         time.Time
	Orders      int64
	AmountCents int64
	FeeCents    int64
}

type Summary struct {
	CompletedOrders int64
	PendingOrders   int64
	RejectedOrders  int64
	FailedOrders    int64
	RevenueCents    int64
	FeeCents        int64
}

type Service struct {
	store MetricsStore
	now   func() time.Time
}

func NewService(store MetricsStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Daily aggregates completed sales per day. A zero range falls back to
// the last 30 days.
func (s *Service) Daily(ctx context.Context, from, to time.Time) ([]DailyPoint, error) {
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultRangeDays)
	}
	if !from.Before(to) {
		return nil, ErrValidation
	}

	rows, err := s.store.ListDaily(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily sales: %w", err)
	}

	out := make([]DailyPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, DailyPoint{
			Day:         row.Day,
			Orders:      row.Orders,
			AmountCents: row.AmountCents,
			FeeCents:    row.FeeCents,
		})
	}

	return out, nil
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	totals, err := s.store.Totals(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load sales totals: %w", err)
	}

	return Summary{
		CompletedOrders: totals.Completed,
		PendingOrders:   totals.Pending,
		RejectedOrders:  totals.Rejected,
		FailedOrders:    totals.Failed,
		RevenueCents:    totals.RevenueCents,
		FeeCents:        totals.FeeCents,
	}, nil
}
