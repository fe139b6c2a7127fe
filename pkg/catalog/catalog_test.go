package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/config"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

func TestNew_PreservesOrder(t *testing.T) {
	c, err := catalog.New([]models.Instrument{
		{Name: "Beta", Code: "B2"},
		{Name: "Acme", Code: "A1"},
		{Name: "Gamma", Code: "G3"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"B2", "A1", "G3"}, c.Codes())
	assert.True(t, c.Contains("A1"))
	assert.False(t, c.Contains("a1"))

	inst, ok := c.Lookup("G3")
	require.True(t, ok)
	assert.Equal(t, "Gamma", inst.Name)
}

func TestNew_Rejects(t *testing.T) {
	_, err := catalog.New(nil)
	assert.ErrorIs(t, err, catalog.ErrEmpty)

	_, err = catalog.New([]models.Instrument{{Name: "Acme", Code: " "}})
	assert.ErrorIs(t, err, catalog.ErrEmptyCode)

	_, err = catalog.New([]models.Instrument{{Name: "Acme", Code: "A1"}, {Name: "Again", Code: "A1"}})
	assert.ErrorIs(t, err, catalog.ErrDuplicateCode)
}

func TestSubset_CatalogOrderAndDedup(t *testing.T) {
	c, err := catalog.ParseEntries([]string{"Acme:A1", "Beta:B2", "Gamma:G3"})
	require.NoError(t, err)

	got := c.Subset([]string{"G3", "A1", "ZZ", "A1"})
	assert.Equal(t, []models.Instrument{{Name: "Acme", Code: "A1"}, {Name: "Gamma", Code: "G3"}}, got)
}

func TestParseEntries_Malformed(t *testing.T) {
	_, err := catalog.ParseEntries([]string{"no-separator"})
	assert.Error(t, err)
}

func TestFromConfig_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := "instruments:\n  - name: Acme\n    code: A1\n  - name: Beta\n    code: B2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := catalog.FromConfig(config.CatalogConfig{File: path, Instruments: []string{"Ignored:X"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B2"}, c.Codes())
}
