package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/shop"
)

type productCreator interface {
	CreateProduct(ctx context.Context, in shop.NewProduct) (shop.Product, error)
}

var demoCatalog = []shop.NewProduct{
	{
		Slug:        "enamel-mug",
		Name:        "Enamel Mug",
		Description: "<p>A chip-resistant camp mug that keeps coffee hot on the trail.</p>",
		PriceCents:  1450,
		Stock:       40,
	},
	{
		Slug:        "canvas-tote",
		Name:        "Canvas Tote",
		Description: "<p>Heavyweight cotton canvas with a reinforced base.</p>",
		PriceCents:  2200,
		Stock:       25,
	},
	{
		Slug:        "field-notebook",
		Name:        "Field Notebook",
		Description: "<p>Pocket-sized, dot grid, <strong>48 pages</strong>.</p>",
		PriceCents:  900,
		Stock:       120,
	},
	{
		Slug:        "wool-beanie",
		Name:        "Wool Beanie",
		Description: "<p>Merino blend, one size.</p>",
		PriceCents:  2800,
		Stock:       0,
	},
}

// SeedDemo loads a small demo catalog. Products that already exist are left
// untouched, so it is safe to run on every start.
func SeedDemo(ctx context.Context, svc productCreator, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	created := 0
	for _, p := range demoCatalog {
		_, err := svc.CreateProduct(ctx, p)
		switch {
		case errors.Is(err, shop.ErrConflict):
			continue
		case err != nil:
			return err
		}
		created++
	}
	logger.Info("demo catalog seeded", zap.Int("created", created), zap.Int("total", len(demoCatalog)))
	return nil
}
