package ledger

import "github.com/google/uuid"

// Category is one revenue category of a restaurant. Restaurants are seeded
// with the curated dictionary set; Reserved categories (uncategorized) exist
// for bookkeeping and cannot be targeted by classification rules.
type Category struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Code         string
	Label        string
	Reserved     bool
}
