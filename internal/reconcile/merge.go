package reconcile

import (
	"slices"

	"flower-storefront/internal/models"
)

// mergeCart unions local and remote lines by product id. Local lines keep
// their position, quantity and snapshot; remote-only lines follow in remote order.
func mergeCart(local, remote []models.CartLine) []models.CartLine {
	merged := make([]models.CartLine, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(local)+len(remote))
	for _, line := range local {
		if seen[line.ProductID] || line.Quantity < 1 {
			continue
		}
		seen[line.ProductID] = true
		merged = append(merged, line)
	}
	for _, line := range remote {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true
		merged = append(merged, line)
	}
	return slices.Clip(merged)
}

// mergeFavorites unions local and remote favorites by product id, local first
func mergeFavorites(local, remote []models.FavoriteEntry) []models.FavoriteEntry {
	merged := make([]models.FavoriteEntry, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(local)+len(remote))
	for _, list := range [][]models.FavoriteEntry{local, remote} {
		for _, fav := range list {
			if seen[fav.ProductID] {
				continue
			}
			seen[fav.ProductID] = true
			fav.IsFavorite = true
			merged = append(merged, fav)
		}
	}
	return merged
}

func cartMirror(lines []models.CartLine) map[string]int {
	mirror := make(map[string]int, len(lines))
	for _, line := range lines {
		mirror[line.ProductID] = line.Quantity
	}
	return mirror
}

func favoriteMirror(favorites []models.FavoriteEntry) map[string]bool {
	mirror := make(map[string]bool, len(favorites))
	for _, fav := range favorites {
		mirror[fav.ProductID] = true
	}
	return mirror
}
