package engine

import (
	"context"
	"time"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/internal/services/fusion"
	"github.com/vadiminshakov/fusiontrader/internal/services/regime"
	"github.com/vadiminshakov/fusiontrader/internal/services/risk"
	"github.com/vadiminshakov/fusiontrader/pkg/retrier"
)

// AccountProvider reports broker account health.
type AccountProvider interface {
	Account(ctx context.Context) (domain.Account, error)
}

// PositionBook lists open positions. An empty symbol means all symbols.
type PositionBook interface {
	OpenPositions(ctx context.Context, symbol string) ([]domain.Position, error)
}

// Executor closes positions evicted by the risk guard.
type Executor interface {
	ClosePosition(ctx context.Context, ticket int64, symbol string, lot float64) error
}

// ATRTracker keeps the recent ATR of every symbol.
type ATRTracker interface {
	Observe(symbol string, atr float64) float64
	Last(symbol string) float64
}

// Deps are the engine collaborators. Every field is optional.
type Deps struct {
	Accounts  AccountProvider
	Positions PositionBook
	Executor  Executor
	ATR       ATRTracker
	// Regime overrides the rule-based detector built from config.
	Regime regime.Source
	// AI defaults to fusion.StubAI.
	AI      fusion.AISource
	Retrier *retrier.Retrier
	State   *risk.State
	Clock   func() time.Time
}
