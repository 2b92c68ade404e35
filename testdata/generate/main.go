package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/money"
)

// Generates a deterministic seed catalog (testdata/products.json) for
// local runs: a spread of vendors, plans, prices, stock levels and
// commission rates, including a few zero-stock and zero-commission
// products so the edge paths show up without hand-crafting requests.
func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	vendors := make([]string, 8)
	for i := range vendors {
		vendors[i] = fmt.Sprintf("vendor-%03d", i+1)
	}
	plans := []string{"standard", "standard", "standard", "pro"}

	categories := []string{"Starter Kit", "Course", "Template Pack", "Coaching Session", "E-Book", "Toolkit"}

	createdAt := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	var products []domain.Product
	for i := 1; i <= 60; i++ {
		vendor := vendors[rng.Intn(len(vendors))]

		// Prices between $5.00 and $250.00, in whole cents.
		priceCents := int64(500 + rng.Intn(24501))

		// Commission 0-30%, with some direct-only products.
		commission := rng.Intn(31)
		if rng.Float64() < 0.15 {
			commission = 0
		}

		stock := rng.Intn(50)
		if rng.Float64() < 0.1 {
			stock = 0
		}

		products = append(products, domain.Product{
			ID:                         fmt.Sprintf("prod-%03d", i),
			VendorID:                   vendor,
			Name:                       fmt.Sprintf("%s #%d", categories[rng.Intn(len(categories))], i),
			UnitPrice:                  money.FromCents(priceCents),
			Stock:                      stock,
			AffiliateCommissionPercent: commission,
			VendorPlan:                 plans[rng.Intn(len(plans))],
			CreatedAt:                  createdAt.AddDate(0, 0, rng.Intn(14)),
		})
	}

	writeJSONFile(filepath.Join(baseDir, "products.json"), products)
	fmt.Printf("Generated %d products -> products.json\n", len(products))
}

func writeJSONFile(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
}

func findTestdataDir() string {
	candidates := []string{"testdata", filepath.Join("..", "..", "testdata")}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
