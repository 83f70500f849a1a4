package services

import (
	"context"
	"errors"

	"github.com/username/cartera/backend/src/models"
)

// Define common service errors
var (
	ErrNoFXSource    = errors.New("no FX rate source available")
	ErrUnknownTicker = errors.New("unknown ticker")
)

// PortfolioService is the view-model boundary: it produces the reconciled
// operation timelines and derived aggregates the frontend renders.
type PortfolioService interface {
	GetPortfolio(ctx context.Context) (*models.PortfolioSummary, error)
	GetOperations(ctx context.Context, ticker string) ([]models.Operation, error)
	GetCostBasis(ctx context.Context, ticker string) (*models.CostBasisState, error)
	GetIncome(ctx context.Context) (*models.IncomeSummary, error)
	GetFees(ctx context.Context) ([]models.FeeEntry, error)
	GetProjectedCashFlows(ctx context.Context) ([]models.CashFlowPoint, error)

	// InvalidateCache drops the derived-report cache so the next request
	// recomputes from (possibly refetched) raw data.
	InvalidateCache()
}
