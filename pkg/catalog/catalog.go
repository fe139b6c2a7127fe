// Package catalog holds the ordered, read-only list of instruments a board is
// built from.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

var (
	ErrEmptyCode     = errors.New("catalog: instrument code is empty")
	ErrDuplicateCode = errors.New("catalog: duplicate instrument code")
	ErrEmpty         = errors.New("catalog: no instruments")
)

// Catalog is immutable once built and safe for concurrent use.
type Catalog struct {
	instruments []models.Instrument
	index       map[string]int
}

func New(instruments []models.Instrument) (*Catalog, error) {
	if len(instruments) == 0 {
		return nil, ErrEmpty
	}

	c := &Catalog{
		instruments: make([]models.Instrument, 0, len(instruments)),
		index:       make(map[string]int, len(instruments)),
	}
	for _, inst := range instruments {
		inst.Code = strings.TrimSpace(inst.Code)
		inst.Name = strings.TrimSpace(inst.Name)
		if inst.Code == "" {
			return nil, ErrEmptyCode
		}
		if _, dup := c.index[inst.Code]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, inst.Code)
		}
		c.index[inst.Code] = len(c.instruments)
		c.instruments = append(c.instruments, inst)
	}
	return c, nil
}

// Instruments returns a copy in insertion order.
func (c *Catalog) Instruments() []models.Instrument {
	out := make([]models.Instrument, len(c.instruments))
	copy(out, c.instruments)
	return out
}

func (c *Catalog) Codes() []string {
	codes := make([]string, len(c.instruments))
	for i, inst := range c.instruments {
		codes[i] = inst.Code
	}
	return codes
}

func (c *Catalog) Len() int { return len(c.instruments) }

func (c *Catalog) Contains(code string) bool {
	_, ok := c.index[code]
	return ok
}

func (c *Catalog) Lookup(code string) (models.Instrument, bool) {
	i, ok := c.index[code]
	if !ok {
		return models.Instrument{}, false
	}
	return c.instruments[i], true
}

// Subset returns the instruments named by codes, in catalog order.
// Unknown codes are dropped and duplicates collapse.
func (c *Catalog) Subset(codes []string) []models.Instrument {
	want := make(map[string]bool, len(codes))
	for _, code := range codes {
		want[code] = true
	}

	var out []models.Instrument
	for _, inst := range c.instruments {
		if want[inst.Code] {
			out = append(out, inst)
		}
	}
	return out
}
