package market

import (
	"context"
	"time"
)

// Brokerage is the minimal order/account surface the engines depend on.
// Concrete vendor clients implement it; tests use fakes.
type Brokerage interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetClock(ctx context.Context) (*Clock, error)
	GetAsset(ctx context.Context, symbol string) (*Asset, error)
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	ClosePosition(ctx context.Context, symbol string) error
}

// MarketData serves latest trade/quote plus previous daily bar.
type MarketData interface {
	GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
	GetCryptoSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// OptionsData serves chains and per-contract snapshots.
type OptionsData interface {
	GetExpirations(ctx context.Context, symbol string) ([]time.Time, error)
	GetChain(ctx context.Context, symbol string, expiration time.Time) (*OptionChain, error)
	GetOptionSnapshot(ctx context.Context, optionSymbol string) (*OptionSnapshot, error)
}
