package csvimport

import (
	"strings"

	"sostrack/internal/model"

	"github.com/google/uuid"
)

// ResolveContainer picks the container template for row within category: an
// explicit AssignedContainerID that exists in the category wins, otherwise the
// SKU suffix is matched case-insensitively against each template's SKU.
func ResolveContainer(row Row, category model.Category) (uuid.UUID, bool) {
	if len(category.Containers) == 0 {
		return uuid.Nil, false
	}
	if row.AssignedContainerID != nil {
		if t, ok := category.Template(*row.AssignedContainerID); ok {
			return t.ID, true
		}
	}
	if row.SKU == "" {
		return uuid.Nil, false
	}
	suffix := SKUSuffix(row.SKU)
	for _, t := range category.Containers {
		if t.SKU != "" && strings.EqualFold(strings.TrimSpace(t.SKU), suffix) {
			return t.ID, true
		}
	}
	return uuid.Nil, false
}

// SuggestProduct returns the product whose display name ("<flavor> <category>")
// or flavor equals the row name, ignoring case. Ambiguous flavor-only matches
// are not suggested.
func SuggestProduct(row Row, products []model.Product, categories map[uuid.UUID]model.Category) (uuid.UUID, bool) {
	name := strings.ToLower(row.Name)
	if name == "" {
		return uuid.Nil, false
	}
	var flavorHit uuid.UUID
	flavorHits := 0
	for _, p := range products {
		cat := categories[p.CategoryID]
		if strings.ToLower(p.DisplayName(cat.Name)) == name {
			return p.ID, true
		}
		if strings.ToLower(strings.TrimSpace(p.Flavor)) == name {
			flavorHit = p.ID
			flavorHits++
		}
	}
	if flavorHits == 1 {
		return flavorHit, true
	}
	return uuid.Nil, false
}
