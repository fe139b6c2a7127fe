package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/SunYerim/StockOfGalaxy/pkg/config"
)

// Open loads the catalog from Postgres when a DSN is configured and falls
// back to FromConfig otherwise.
func Open(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	if cfg.Postgres.DSN == "" {
		return FromConfig(cfg.Catalog)
	}

	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return LoadPostgres(ctx, db)
}
