package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hmaung/salesync/internal/errs"
	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/rules"
	"github.com/hmaung/salesync/internal/sync"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func applyInitSQL(t *testing.T, dsn string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open for init: %v", err)
	}
	defer s.Close()
	// Resolve init SQL path relative to this test file so CWD doesn't matter
	_, thisFile, _, _ := runtime.Caller(0)
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(thisFile), "../../../"))
	path := filepath.Join(repoRoot, "db", "migrations", "0001_init.sql")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read init sql: %v", err)
	}
	if _, err := s.pool.Exec(ctx, string(b)); err != nil {
		t.Fatalf("apply init sql: %v", err)
	}
}

func truncateAll(t *testing.T, dsn string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open for truncate: %v", err)
	}
	defer s.Close()
	_, _ = s.pool.Exec(ctx, `
        truncate table sale_entries, category_rules, categories,
            source_payments, source_order_items, source_orders,
            pos_connections, restaurant_users, users, restaurants cascade
    `)
}

func TestStore_ReconcileRoundTrip(t *testing.T) {
	dsn := getTestDSN(t)
	applyInitSQL(t, dsn)
	truncateAll(t, dsn)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s := mustOpen(t, dsn)
	defer s.Close()

	if err := s.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}

	restaurantID, userID, err := s.SeedDev(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ok, err := s.HasRestaurantAccess(ctx, userID, restaurantID)
	if err != nil || !ok {
		t.Fatalf("access: ok=%v err=%v", ok, err)
	}

	conn, err := s.ActiveConnection(ctx, restaurantID)
	if err != nil {
		t.Fatalf("connection: %v", err)
	}
	if conn.POSSystem != "toast" || conn.LastSyncedAt != nil {
		t.Fatalf("unexpected connection: %+v", conn)
	}

	bundles, err := s.OrdersInWindow(ctx, restaurantID, "toast", sync.FullWindow())
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(bundles) != 1 || len(bundles[0].Items) != 2 || len(bundles[0].Payments) != 1 {
		t.Fatalf("unexpected bundles: %+v", bundles)
	}

	now := time.Now().UTC()
	desired := sync.Generate(bundles[0], now)
	// two sales, one tax, one tip
	if len(desired) != 4 {
		t.Fatalf("expected 4 generated rows, got %d", len(desired))
	}

	written, retracted, err := s.ApplyReconciliation(ctx, restaurantID, nil, desired)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if written != 4 || retracted != 0 {
		t.Fatalf("apply counts: written=%d retracted=%d", written, retracted)
	}

	// Re-apply is an in-place merge, not a duplicate set.
	regen := sync.Generate(bundles[0], now.Add(time.Minute))
	if _, _, err := s.ApplyReconciliation(ctx, restaurantID, nil, regen); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	entries, err := s.EntriesByOrder(ctx, restaurantID, "demo-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 rows after resync, got %d", len(entries))
	}

	// Retraction removes rows by natural key, the whole set in one statement.
	var stale []ledger.Key
	for _, e := range desired {
		if e.AdjustmentType == ledger.AdjustmentTip || e.AdjustmentType == ledger.AdjustmentTax {
			stale = append(stale, e.Key)
		}
	}
	if len(stale) != 2 {
		t.Fatalf("expected tip and tax keys, got %d", len(stale))
	}
	_, retracted, err = s.ApplyReconciliation(ctx, restaurantID, stale, nil)
	if err != nil {
		t.Fatalf("retract: %v", err)
	}
	if retracted != 2 {
		t.Fatalf("expected 2 retractions, got %d", retracted)
	}
	entries, err = s.EntriesByOrder(ctx, restaurantID, "demo-1")
	if err != nil {
		t.Fatalf("entries after retract: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 rows after retraction, got %d", len(entries))
	}

	if err := s.SetLastSyncedAt(ctx, conn.ID, now); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	conn, err = s.ActiveConnection(ctx, restaurantID)
	if err != nil || conn.LastSyncedAt == nil {
		t.Fatalf("checkpoint not advanced: %+v err=%v", conn, err)
	}
}

func TestStore_RulesAndCategories(t *testing.T) {
	dsn := getTestDSN(t)
	applyInitSQL(t, dsn)
	truncateAll(t, dsn)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := mustOpen(t, dsn)
	defer s.Close()

	restaurantID, _, err := s.SeedDev(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	cats, err := s.CategoriesByRestaurant(ctx, restaurantID)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	var beverage, reserved *ledger.Category
	for i := range cats {
		if cats[i].Code == "beverage" {
			beverage = &cats[i]
		}
		if cats[i].Reserved {
			reserved = &cats[i]
		}
	}
	if beverage == nil || reserved == nil {
		t.Fatalf("curated set incomplete: %+v", cats)
	}

	r, err := s.CreateRule(ctx, rules.Rule{
		RestaurantID: restaurantID,
		Priority:     5,
		Field:        rules.FieldName,
		Pattern:      "lemonade",
		CategoryID:   beverage.ID,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	// Rules may not target reserved categories.
	if _, err := s.CreateRule(ctx, rules.Rule{
		RestaurantID: restaurantID,
		Priority:     1,
		Field:        rules.FieldName,
		Pattern:      "x",
		CategoryID:   reserved.ID,
		Active:       true,
	}); err == nil {
		t.Fatalf("expected reserved category rejection")
	}

	if err := s.IncrementRuleUsage(ctx, r.ID); err != nil {
		t.Fatalf("usage: %v", err)
	}
	got, err := s.RulesByRestaurant(ctx, restaurantID)
	if err != nil || len(got) != 1 {
		t.Fatalf("rules: %v len=%d", err, len(got))
	}
	if got[0].UsageCount != 1 {
		t.Fatalf("expected usage 1, got %d", got[0].UsageCount)
	}

	custom, err := s.CreateCategory(ctx, restaurantID, "", "Happy Hour!")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if custom.Code != "happy_hour" {
		t.Fatalf("expected derived code happy_hour, got %q", custom.Code)
	}
	if _, err := s.CreateCategory(ctx, restaurantID, "happy_hour", "dup"); err == nil {
		t.Fatalf("expected duplicate code conflict")
	}
}

func TestStore_SplitClassifiesAndRejectsReplay(t *testing.T) {
	dsn := getTestDSN(t)
	applyInitSQL(t, dsn)
	truncateAll(t, dsn)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s := mustOpen(t, dsn)
	defer s.Close()

	restaurantID, _, err := s.SeedDev(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	bundles, err := s.OrdersInWindow(ctx, restaurantID, "toast", sync.FullWindow())
	if err != nil || len(bundles) != 1 {
		t.Fatalf("orders: %v len=%d", err, len(bundles))
	}
	desired := sync.Generate(bundles[0], time.Now().UTC())
	if _, _, err := s.ApplyReconciliation(ctx, restaurantID, nil, desired); err != nil {
		t.Fatalf("apply: %v", err)
	}

	cats, err := s.CategoriesByRestaurant(ctx, restaurantID)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	var food *ledger.Category
	for i := range cats {
		if cats[i].Code == "food" {
			food = &cats[i]
		}
	}
	if food == nil {
		t.Fatalf("no food category provisioned")
	}
	rule, err := s.CreateRule(ctx, rules.Rule{
		RestaurantID: restaurantID,
		Priority:     5,
		Field:        rules.FieldName,
		Pattern:      "patty",
		CategoryID:   food.ID,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	entries, err := s.EntriesByOrder(ctx, restaurantID, "demo-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var parentID uuid.UUID
	for _, e := range entries {
		if e.ExternalItemID == "it-1" {
			parentID = e.ID
		}
	}
	if parentID == uuid.Nil {
		t.Fatalf("no sale row for it-1")
	}

	children, err := s.CreateSplit(ctx, restaurantID, parentID, []ledger.SplitPart{
		{Name: "Beef Patty", TotalMinor: 900},
		{Name: "Bun", TotalMinor: 300},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	var classified int
	for _, c := range children {
		if c.IsCategorized {
			classified++
			if c.CategoryID == nil || *c.CategoryID != food.ID {
				t.Fatalf("child classified to wrong category: %+v", c)
			}
		}
	}
	if classified != 1 {
		t.Fatalf("expected 1 classified child, got %d", classified)
	}
	got, err := s.RulesByRestaurant(ctx, restaurantID)
	if err != nil || len(got) != 1 {
		t.Fatalf("rules: %v len=%d", err, len(got))
	}
	if got[0].ID == rule.ID && got[0].UsageCount != 1 {
		t.Fatalf("usage increment did not commit with the split, got %d", got[0].UsageCount)
	}

	// Splitting the same parent again conflicts instead of stacking children.
	if _, err := s.CreateSplit(ctx, restaurantID, parentID, []ledger.SplitPart{
		{Name: "A", TotalMinor: 600},
		{Name: "B", TotalMinor: 600},
	}, time.Now().UTC()); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict on replay, got %v", err)
	}
}
