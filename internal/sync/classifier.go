package sync

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/rules"
)

// ClassifierStore is the slice of storage the batch classifier needs.
type ClassifierStore interface {
	// ActiveRules returns the restaurant's active classification rules.
	ActiveRules(ctx context.Context, restaurantID uuid.UUID) ([]rules.Rule, error)
	// RevenueRowsToClassify returns the uncategorized revenue rows among the
	// given natural keys.
	RevenueRowsToClassify(ctx context.Context, restaurantID uuid.UUID, keys []ledger.Key) ([]ledger.Entry, error)
	// SetEntryCategory records a classifier decision on one row.
	SetEntryCategory(ctx context.Context, restaurantID, entryID, categoryID uuid.UUID) error
	// IncrementRuleUsage bumps the usage counter of a matched rule.
	IncrementRuleUsage(ctx context.Context, ruleID uuid.UUID) error
}

// Classify runs the post-write classification pass: for every revenue row
// written by this run that is not yet categorized, rules are evaluated in
// descending priority and the first match is applied. Only plain sale rows
// are eligible; tax, tip and offset rows are never auto-classified. A rule
// that fails to evaluate is logged and skipped, and the row stays
// uncategorized.
func Classify(ctx context.Context, store ClassifierStore, log *slog.Logger, restaurantID uuid.UUID, written []ledger.Key) (int, error) {
	if len(written) == 0 {
		return 0, nil
	}
	ruleSet, err := store.ActiveRules(ctx, restaurantID)
	if err != nil {
		return 0, err
	}
	if len(ruleSet) == 0 {
		return 0, nil
	}
	rules.SortByPriority(ruleSet)

	rows, err := store.RevenueRowsToClassify(ctx, restaurantID, written)
	if err != nil {
		return 0, err
	}

	classified := 0
	for _, row := range rows {
		if !row.IsRevenue() || row.IsCategorized {
			continue
		}
		hint, _ := row.Metadata.Get("category_hint")
		for _, rule := range ruleSet {
			ok, err := rule.Match(row.Name, hint)
			if err != nil {
				log.Warn("classification rule failed, skipping",
					"rule_id", rule.ID, "entry_id", row.ID, "err", err)
				continue
			}
			if !ok {
				continue
			}
			if err := store.SetEntryCategory(ctx, restaurantID, row.ID, rule.CategoryID); err != nil {
				log.Warn("could not apply category", "entry_id", row.ID, "err", err)
				break
			}
			if err := store.IncrementRuleUsage(ctx, rule.ID); err != nil {
				log.Warn("could not bump rule usage", "rule_id", rule.ID, "err", err)
			}
			classified++
			break
		}
	}
	return classified, nil
}
