package ledgersim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	doc := `{"products":[{"id":"p-1","sku":"TEA-1","name":"Tea","price":"2.50"}],"customers":[{"id":"c-1","name":"Ada"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seed.Products, 1)
	assert.Equal(t, "TEA-1", seed.Products[0].SKU)
	assert.Equal(t, "2.5", seed.Products[0].Price.String())
	require.Len(t, seed.Customers, 1)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
