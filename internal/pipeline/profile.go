package pipeline

import (
	"fmt"
	"strings"

	"github.com/spetr/aethersync/pkg/types"
)

// CustomerText describes a customer by name, place and purchased categories.
func CustomerText(p *types.CustomerProfile) string {
	s := fmt.Sprintf("Customer %s from %s, %s.", p.FirstName, p.City, p.State)
	if len(p.Categories) > 0 {
		return s + " This customer primarily buys: " + strings.Join(p.Categories, ", ") + "."
	}
	return s + " This customer has no purchase history."
}

// ProductText describes a product for embedding.
func ProductText(p *types.ProductProfile) string {
	return fmt.Sprintf("Product: %s. Description: %s Category: %s. Price: $%s",
		p.Name, p.Description, p.Category, p.Price)
}

// ReviewText describes a review for embedding.
func ReviewText(p *types.ReviewProfile) string {
	return fmt.Sprintf("Review Text: %s Rating: %d/5", p.Text, p.Rating)
}
