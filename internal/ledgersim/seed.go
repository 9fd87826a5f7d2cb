package ledgersim

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/angelmondragon/offline-pos/pkg/types"
)

// SeedData is the on-disk catalog a simulator starts with.
type SeedData struct {
	Products  []types.ProductRecord  `json:"products"`
	Customers []types.CustomerRecord `json:"customers"`
}

// LoadSeedFile reads a SeedData document from path.
func LoadSeedFile(path string) (SeedData, error) {
	var seed SeedData
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read seed file: %w", err)
	}
	if err := json.Unmarshal(raw, &seed); err != nil {
		return seed, fmt.Errorf("decode seed file: %w", err)
	}
	return seed, nil
}
