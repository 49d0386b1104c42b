package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	planerrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
)

// Load reads and parses a consolidated file.
func Load(path string) (*model.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, planerrors.InvalidDataset(path, err)
	}
	return Parse(path, raw)
}

// Parse decodes consolidated JSON. path is used for error reporting only.
func Parse(path string, raw []byte) (*model.Dataset, error) {
	var ds model.Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, planerrors.InvalidDataset(path, fmt.Errorf("decode: %w", err))
	}
	if ds.Brands == nil {
		ds.Brands = make(map[string]model.BrandData)
	}
	return &ds, nil
}
