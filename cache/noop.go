package cache

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Noop is used when Redis is unavailable; every read is a miss
type Noop struct{}

func (Noop) GetBalance(context.Context, uuid.UUID) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (Noop) SetBalance(context.Context, uuid.UUID, decimal.Decimal) error { return nil }

func (Noop) InvalidateBalance(context.Context, uuid.UUID) error { return nil }

func (Noop) GetPool(context.Context, string) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (Noop) SetPool(context.Context, string, decimal.Decimal) error { return nil }

func (Noop) InvalidatePool(context.Context, string) error { return nil }
