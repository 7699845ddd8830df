package httpapi

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/rules"
	"github.com/hmaung/salesync/internal/sync"
)

// LedgerReader abstracts ledger read operations used by the API.
type LedgerReader interface {
	// EntriesInWindow returns parentless ledger rows of a restaurant inside
	// the window; an empty posSystem matches any provider.
	EntriesInWindow(ctx context.Context, restaurantID uuid.UUID, posSystem string, w sync.Window) ([]ledger.Entry, error)
	// EntriesByOrder returns every ledger row of one order, split children included.
	EntriesByOrder(ctx context.Context, restaurantID uuid.UUID, externalOrderID string) ([]ledger.Entry, error)
	// OrderSummary folds one order's rows into totals.
	OrderSummary(ctx context.Context, restaurantID uuid.UUID, externalOrderID string) (ledger.OrderSummary, error)
}

// SplitWriter abstracts manual split creation.
type SplitWriter interface {
	CreateSplit(ctx context.Context, restaurantID, parentID uuid.UUID, parts []ledger.SplitPart, now time.Time) ([]ledger.Entry, error)
}

// RuleStore abstracts classification rule management.
type RuleStore interface {
	CreateRule(ctx context.Context, r rules.Rule) (rules.Rule, error)
	RulesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]rules.Rule, error)
}

// CategoryStore abstracts category reads and custom category creation.
type CategoryStore interface {
	CategoriesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]ledger.Category, error)
	CreateCategory(ctx context.Context, restaurantID uuid.UUID, code, label string) (ledger.Category, error)
}

// AccessChecker reports restaurant membership for user callers.
type AccessChecker interface {
	HasRestaurantAccess(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error)
}

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Store is the convenience union satisfied by the memory and postgres stores.
type Store interface {
	LedgerReader
	SplitWriter
	RuleStore
	CategoryStore
	AccessChecker
}
