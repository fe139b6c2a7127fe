package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SunYerim/StockOfGalaxy/pkg/config"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

type yamlFile struct {
	Instruments []models.Instrument `yaml:"instruments"`
}

// FromConfig picks the catalog source: a YAML file when one is configured,
// otherwise the inline "Name:Code" entries.
func FromConfig(cfg config.CatalogConfig) (*Catalog, error) {
	if cfg.File != "" {
		return LoadYAML(cfg.File)
	}
	return ParseEntries(cfg.Instruments)
}

// ParseEntries parses "Name:Code" pairs. The code is taken after the last colon.
func ParseEntries(entries []string) (*Catalog, error) {
	instruments := make([]models.Instrument, 0, len(entries))
	for _, e := range entries {
		i := strings.LastIndex(e, ":")
		if i < 0 {
			return nil, fmt.Errorf("catalog entry %q: want Name:Code", e)
		}
		instruments = append(instruments, models.Instrument{Name: e[:i], Code: e[i+1:]})
	}
	return New(instruments)
}

func LoadYAML(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return New(f.Instruments)
}

const listedStocksQuery = `
SELECT company_name, stock_code
FROM stock
WHERE is_delisted = false
ORDER BY id`

// LoadPostgres reads listed stocks in insertion order.
func LoadPostgres(ctx context.Context, db *sql.DB) (*Catalog, error) {
	rows, err := db.QueryContext(ctx, listedStocksQuery)
	if err != nil {
		return nil, fmt.Errorf("query stock catalog: %w", err)
	}
	defer rows.Close()

	var instruments []models.Instrument
	for rows.Next() {
		var inst models.Instrument
		if err := rows.Scan(&inst.Name, &inst.Code); err != nil {
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock rows: %w", err)
	}
	return New(instruments)
}
