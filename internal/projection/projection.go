// Package projection turns a user's ledgers into month-by-month profit.
package projection

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/abuiliazeed/financial-projections/internal/domain/models"
)

const monthsInYear = 12

// TotalsSource sums one ledger per month.
type TotalsSource interface {
	MonthlyTotals(ctx context.Context, kind models.Kind, userID int64, year int) (map[int]models.Money, error)
}

type Service struct {
	totals TotalsSource
}

func New(totals TotalsSource) *Service {
	return &Service{totals: totals}
}

// Year returns twelve projections, January first. Revenue and expense totals
// are loaded concurrently.
func (s *Service) Year(ctx context.Context, userID int64, year int) ([]models.MonthProjection, error) {
	const op = "projection.Year"

	var revenues, expenses map[int]models.Money

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revenues, err = s.totals.MonthlyTotals(gctx, models.KindRevenue, userID, year)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.totals.MonthlyTotals(gctx, models.KindExpense, userID, year)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return Build(revenues, expenses), nil
}

// Build merges per-month totals into a full year. Missing months are zero.
func Build(revenues, expenses map[int]models.Money) []models.MonthProjection {
	out := make([]models.MonthProjection, 0, monthsInYear)
	for month := 1; month <= monthsInYear; month++ {
		rev := revenues[month]
		exp := expenses[month]
		out = append(out, models.MonthProjection{
			Month:         month,
			TotalRevenue:  rev,
			TotalExpenses: exp,
			NetProfit:     rev - exp,
		})
	}
	return out
}
