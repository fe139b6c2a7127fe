package repository

import (
	"context"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// SnapshotStore returns the last known quote per code. Codes with no stored
// quote are simply absent from the result.
type SnapshotStore interface {
	GetSnapshots(ctx context.Context, codes []string) ([]models.PriceMessage, error)
	Ping(ctx context.Context) error
}
