package postgres

// Package postgres provides a pgx-backed storage implementation that satisfies
// the sync and API storage interfaces.
//
// It is intentionally small and explicit. Migrations that create the expected
// schema live under db/migrations. This package focuses on mapping between the
// domain entities and SQL rows and running the necessary statements and
// transactions. Monetary ledger amounts are stored as bigint minor units;
// source-order decimals are stored as numeric and moved as strings.

import (
	"context"
	"errors"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hmaung/salesync/internal/dictionary"
	"github.com/hmaung/salesync/internal/errs"
	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/meta"
	"github.com/hmaung/salesync/internal/pos"
	"github.com/hmaung/salesync/internal/rules"
	"github.com/hmaung/salesync/internal/slug"
	"github.com/hmaung/salesync/internal/sync"
)

// Store holds a pgx connection pool and implements the storage interfaces
// used across the service layer. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool

	// suspended gates the per-row classification hook, mirroring the memory
	// store. The reconciliation merge raises it for the run.
	suspended atomic.Int32
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// ProvisionCategories seeds the curated category set for a restaurant.
// Codes already present are left alone, so re-provisioning is safe.
func (s *Store) ProvisionCategories(ctx context.Context, restaurantID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, def := range dictionary.Defaults() {
		if _, err := tx.Exec(ctx, `
            insert into categories (id, restaurant_id, code, label, reserved)
            values ($1,$2,$3,$4,$5)
            on conflict (restaurant_id, code) do nothing
        `, uuid.New(), restaurantID, def.Code, def.Label, def.Reserved); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SeedDev inserts a restaurant with one member, an active POS connection and
// one demo order for quick local testing. Fresh UUIDs keep it idempotent per run.
func (s *Store) SeedDev(ctx context.Context) (restaurantID, userID uuid.UUID, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	restaurantID, userID = uuid.New(), uuid.New()
	if _, err := tx.Exec(ctx, `insert into restaurants (id, name) values ($1, 'Demo Diner')`, restaurantID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `insert into users (id, email) values ($1, null)`, userID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `insert into restaurant_users (restaurant_id, user_id) values ($1, $2)`, restaurantID, userID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `
        insert into pos_connections (id, restaurant_id, pos_system, active)
        values ($1, $2, 'toast', true)
    `, uuid.New(), restaurantID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orderedAt := time.Now().UTC().Add(-2 * time.Hour)
	if _, err := tx.Exec(ctx, `
        insert into source_orders (restaurant_id, pos_system, external_id, ordered_at, currency, gross_total, tax, raw)
        values ($1, 'toast', 'demo-1', $2, 'USD', 16.50, 1.20, '{}')
    `, restaurantID, orderedAt); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `
        insert into source_order_items
            (restaurant_id, order_external_id, external_id, name, quantity, gross_amount, net_amount, voided, category_hint)
        values
            ($1, 'demo-1', 'it-1', 'Cheeseburger', 1, 12.00, 12.00, false, 'mains'),
            ($1, 'demo-1', 'it-2', 'Lemonade', 2, 4.50, 4.50, false, 'drinks')
    `, restaurantID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, `
        insert into source_payments
            (restaurant_id, order_external_id, external_id, paid_at, tip, status, refund_amount_minor, refund_status)
        values ($1, 'demo-1', 'pay-1', $2, 2.00, 'paid', 0, 'none')
    `, restaurantID, orderedAt.Add(30*time.Minute)); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if err := s.ProvisionCategories(ctx, restaurantID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return restaurantID, userID, nil
}

// --- Access and connections ---

// HasRestaurantAccess implements sync.Store.
func (s *Store) HasRestaurantAccess(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
        select exists (
            select 1 from restaurant_users where restaurant_id = $1 and user_id = $2
        )
    `, restaurantID, userID).Scan(&ok)
	return ok, err
}

// ActiveConnection implements sync.Store.
func (s *Store) ActiveConnection(ctx context.Context, restaurantID uuid.UUID) (sync.Connection, error) {
	var c sync.Connection
	err := s.pool.QueryRow(ctx, `
        select id, restaurant_id, pos_system, active, last_synced_at
        from pos_connections
        where restaurant_id = $1 and active
        order by id
        limit 1
    `, restaurantID).Scan(&c.ID, &c.RestaurantID, &c.POSSystem, &c.Active, &c.LastSyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sync.Connection{}, errs.ErrNotConnected
	}
	if err != nil {
		return sync.Connection{}, err
	}
	return c, nil
}

// ActiveConnections implements sync.Store.
func (s *Store) ActiveConnections(ctx context.Context) ([]sync.Connection, error) {
	rows, err := s.pool.Query(ctx, `
        select id, restaurant_id, pos_system, active, last_synced_at
        from pos_connections
        where active
        order by id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]sync.Connection, 0)
	for rows.Next() {
		var c sync.Connection
		if err := rows.Scan(&c.ID, &c.RestaurantID, &c.POSSystem, &c.Active, &c.LastSyncedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetLastSyncedAt implements sync.Store.
func (s *Store) SetLastSyncedAt(ctx context.Context, connectionID uuid.UUID, t time.Time) error {
	ct, err := s.pool.Exec(ctx, `
        update pos_connections set last_synced_at = $1 where id = $2
    `, t, connectionID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Source reads ---

// windowClause renders the optional window bounds for a timestamp column,
// continuing the argument list at the given index.
func windowClause(col string, w sync.Window, args []any) (string, []any) {
	clause := ""
	if w.From != nil {
		args = append(args, *w.From)
		clause += " and " + col + " >= $" + itoa(len(args))
	}
	if w.To != nil {
		args = append(args, *w.To)
		clause += " and " + col + " <= $" + itoa(len(args))
	}
	return clause, args
}

// OrdersInWindow implements sync.Store: orders plus their items and payments.
func (s *Store) OrdersInWindow(ctx context.Context, restaurantID uuid.UUID, posSystem string, w sync.Window) ([]pos.OrderBundle, error) {
	args := []any{restaurantID, posSystem}
	clause, args := windowClause("ordered_at", w, args)
	rows, err := s.pool.Query(ctx, `
        select external_id, ordered_at, currency,
               gross_total::text, tax::text, discount::text, raw
        from source_orders
        where restaurant_id = $1 and pos_system = $2`+clause+`
        order by ordered_at asc, external_id asc
    `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*pos.OrderBundle)
	ids := make([]string, 0)
	for rows.Next() {
		o := pos.Order{RestaurantID: restaurantID, POSSystem: posSystem}
		var gross string
		var tax, discount *string
		if err := rows.Scan(&o.ExternalID, &o.OrderedAt, &o.Currency, &gross, &tax, &discount, &o.Raw); err != nil {
			return nil, err
		}
		o.GrossTotal, err = decimal.NewFromString(gross)
		if err != nil {
			return nil, err
		}
		if o.Tax, err = decimalPtr(tax); err != nil {
			return nil, err
		}
		if o.Discount, err = decimalPtr(discount); err != nil {
			return nil, err
		}
		byID[o.ExternalID] = &pos.OrderBundle{Order: o}
		ids = append(ids, o.ExternalID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	itemRows, err := s.pool.Query(ctx, `
        select order_external_id, external_id, name,
               quantity::text, gross_amount::text, net_amount::text,
               voided, discount_amount::text, category_hint
        from source_order_items
        where restaurant_id = $1 and order_external_id = any($2)
        order by order_external_id, external_id
    `, restaurantID, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it pos.OrderItem
		var qty, gross, net string
		var discount *string
		if err := itemRows.Scan(&it.OrderExternalID, &it.ExternalID, &it.Name, &qty, &gross, &net, &it.Voided, &discount, &it.CategoryHint); err != nil {
			return nil, err
		}
		if it.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if it.GrossAmount, err = decimal.NewFromString(gross); err != nil {
			return nil, err
		}
		if it.NetAmount, err = decimal.NewFromString(net); err != nil {
			return nil, err
		}
		if it.DiscountAmount, err = decimalPtr(discount); err != nil {
			return nil, err
		}
		if b := byID[it.OrderExternalID]; b != nil {
			b.Items = append(b.Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	payRows, err := s.pool.Query(ctx, `
        select order_external_id, external_id, paid_at,
               tip::text, status, refund_amount_minor, refund_status
        from source_payments
        where restaurant_id = $1 and order_external_id = any($2)
        order by order_external_id, external_id
    `, restaurantID, ids)
	if err != nil {
		return nil, err
	}
	defer payRows.Close()
	for payRows.Next() {
		var p pos.Payment
		var tip *string
		if err := payRows.Scan(&p.OrderExternalID, &p.ExternalID, &p.PaidAt, &tip, &p.Status, &p.RefundAmountMinor, &p.RefundStatus); err != nil {
			return nil, err
		}
		if p.Tip, err = decimalPtr(tip); err != nil {
			return nil, err
		}
		if b := byID[p.OrderExternalID]; b != nil {
			b.Payments = append(b.Payments, p)
		}
	}
	if err := payRows.Err(); err != nil {
		return nil, err
	}

	out := make([]pos.OrderBundle, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byID[id])
	}
	return out, nil
}

// --- Ledger reads ---

const entryColumns = `
        id, restaurant_id, pos_system, external_order_id, external_item_id,
        item_type, adjustment_type, name, quantity::text, currency,
        unit_price_minor, total_price_minor, sold_at,
        category_id, is_categorized, parent_sale_id, metadata, synced_at`

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var e ledger.Entry
	var qty, currency string
	var unitMinor, totalMinor int64
	var mdBytes []byte
	err := row.Scan(&e.ID, &e.RestaurantID, &e.POSSystem, &e.ExternalOrderID, &e.ExternalItemID,
		&e.ItemType, &e.AdjustmentType, &e.Name, &qty, &currency,
		&unitMinor, &totalMinor, &e.SoldAt,
		&e.CategoryID, &e.IsCategorized, &e.ParentSaleID, &mdBytes, &e.SyncedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	if e.Quantity, err = decimal.NewFromString(qty); err != nil {
		return ledger.Entry{}, err
	}
	e.UnitPrice = ledger.AmountFromMinor(currency, unitMinor)
	e.TotalPrice = ledger.AmountFromMinor(currency, totalMinor)
	if len(mdBytes) > 0 {
		var m meta.Metadata
		if err := m.UnmarshalJSON(mdBytes); err == nil {
			e.Metadata = m
		}
	}
	return e, nil
}

// EntriesInWindow implements sync.Store. Only parentless rows are returned.
func (s *Store) EntriesInWindow(ctx context.Context, restaurantID uuid.UUID, posSystem string, w sync.Window) ([]ledger.Entry, error) {
	args := []any{restaurantID}
	sysClause := ""
	if posSystem != "" {
		args = append(args, posSystem)
		sysClause = " and pos_system = $2"
	}
	clause, args := windowClause("sold_at", w, args)
	rows, err := s.pool.Query(ctx, `
        select `+entryColumns+`
        from sale_entries
        where restaurant_id = $1`+sysClause+clause+` and parent_sale_id is null
        order by sold_at asc, external_item_id asc
    `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntryByID returns one ledger row of a restaurant.
func (s *Store) EntryByID(ctx context.Context, restaurantID, entryID uuid.UUID) (ledger.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `
        select `+entryColumns+`
        from sale_entries
        where id = $1 and restaurant_id = $2
    `, entryID, restaurantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, errs.ErrNotFound
	}
	return e, err
}

// EntriesByOrder returns every ledger row of one order, split children included.
func (s *Store) EntriesByOrder(ctx context.Context, restaurantID uuid.UUID, externalOrderID string) ([]ledger.Entry, error) {
	rows, err := s.pool.Query(ctx, `
        select `+entryColumns+`
        from sale_entries
        where restaurant_id = $1 and external_order_id = $2
        order by external_item_id asc
    `, restaurantID, externalOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// OrderSummary folds one order's parentless rows into totals.
func (s *Store) OrderSummary(ctx context.Context, restaurantID uuid.UUID, externalOrderID string) (ledger.OrderSummary, error) {
	entries, err := s.EntriesByOrder(ctx, restaurantID, externalOrderID)
	if err != nil {
		return ledger.OrderSummary{}, err
	}
	if len(entries) == 0 {
		return ledger.OrderSummary{}, errs.ErrNotFound
	}
	return ledger.Summarize(entries), nil
}

// --- Reconciliation write ---

// ApplyReconciliation implements sync.Store: retractions and upserts run in
// one transaction under a per-restaurant advisory lock, so two processes can
// never interleave merges for the same restaurant. On key conflict the
// incoming row wins except for user-owned fields, which are kept if set.
func (s *Store) ApplyReconciliation(ctx context.Context, restaurantID uuid.UUID, retract []ledger.Key, entries []ledger.Entry) (written, retracted int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Held until commit; serializes reconciliation per restaurant across processes.
	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtextextended($1::text, 0))`, restaurantID); err != nil {
		return 0, 0, err
	}

	// One set-based DELETE covers the whole retraction set.
	var delSystems, delOrders, delItems []string
	for _, k := range retract {
		if k.RestaurantID != restaurantID {
			continue
		}
		delSystems = append(delSystems, k.POSSystem)
		delOrders = append(delOrders, k.ExternalOrderID)
		delItems = append(delItems, k.ExternalItemID)
	}
	if len(delItems) > 0 {
		ct, err := tx.Exec(ctx, `
            delete from sale_entries se
            using unnest($2::text[], $3::text[], $4::text[]) as k(pos_system, external_order_id, external_item_id)
            where se.restaurant_id = $1
              and se.pos_system = k.pos_system
              and se.external_order_id = k.external_order_id
              and se.external_item_id = k.external_item_id
              and se.parent_sale_id is null
        `, restaurantID, delSystems, delOrders, delItems)
		if err != nil {
			return 0, 0, err
		}
		retracted = ct.RowsAffected()
	}

	// Upserts go out as one pipelined batch instead of a round trip per row.
	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.RestaurantID != restaurantID {
			continue
		}
		md, _ := e.Metadata.MarshalStableJSON()
		unitMinor, _ := e.UnitPrice.MinorUnits()
		batch.Queue(`
            insert into sale_entries
                (id, restaurant_id, pos_system, external_order_id, external_item_id,
                 item_type, adjustment_type, name, quantity, currency,
                 unit_price_minor, total_price_minor, sold_at,
                 category_id, is_categorized, parent_sale_id, metadata, synced_at)
            values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,null,$16,$17)
            on conflict (restaurant_id, pos_system, external_order_id, external_item_id)
                where parent_sale_id is null
            do update set
                item_type        = excluded.item_type,
                adjustment_type  = excluded.adjustment_type,
                name             = excluded.name,
                quantity         = excluded.quantity,
                currency         = excluded.currency,
                unit_price_minor = excluded.unit_price_minor,
                total_price_minor = excluded.total_price_minor,
                sold_at          = excluded.sold_at,
                metadata         = excluded.metadata,
                synced_at        = excluded.synced_at,
                category_id      = coalesce(sale_entries.category_id, excluded.category_id),
                is_categorized   = sale_entries.is_categorized or excluded.is_categorized
        `, e.ID, e.RestaurantID, e.POSSystem, e.ExternalOrderID, e.ExternalItemID,
			e.ItemType, e.AdjustmentType, e.Name, e.Quantity.String(), e.TotalPrice.Curr().Code(),
			unitMinor, e.TotalMinor(), e.SoldAt,
			e.CategoryID, e.IsCategorized, md, e.SyncedAt)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return 0, 0, err
			}
			written++
		}
		if err := br.Close(); err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return written, retracted, nil
}

// SuspendAutoClassify implements sync.Store. Resume is idempotent.
func (s *Store) SuspendAutoClassify() (resume func()) {
	s.suspended.Add(1)
	var once stdsync.Once
	return func() {
		once.Do(func() { s.suspended.Add(-1) })
	}
}

// --- Classification ---

// ActiveRules implements sync.ClassifierStore.
func (s *Store) ActiveRules(ctx context.Context, restaurantID uuid.UUID) ([]rules.Rule, error) {
	rows, err := s.pool.Query(ctx, `
        select id, restaurant_id, priority, field, pattern, category_id, active, usage_count
        from category_rules
        where restaurant_id = $1 and active
        order by priority desc, id asc
    `, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]rules.Rule, 0)
	for rows.Next() {
		var r rules.Rule
		if err := rows.Scan(&r.ID, &r.RestaurantID, &r.Priority, &r.Field, &r.Pattern, &r.CategoryID, &r.Active, &r.UsageCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RevenueRowsToClassify implements sync.ClassifierStore.
func (s *Store) RevenueRowsToClassify(ctx context.Context, restaurantID uuid.UUID, keys []ledger.Key) ([]ledger.Entry, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	itemIDs := make(map[string][]string) // order -> item ids
	for _, k := range keys {
		if k.RestaurantID != restaurantID {
			continue
		}
		itemIDs[k.ExternalOrderID] = append(itemIDs[k.ExternalOrderID], k.ExternalItemID)
	}
	out := make([]ledger.Entry, 0)
	for orderID, items := range itemIDs {
		rows, err := s.pool.Query(ctx, `
            select `+entryColumns+`
            from sale_entries
            where restaurant_id = $1 and external_order_id = $2
              and external_item_id = any($3)
              and item_type = 'sale' and adjustment_type = 'none'
              and not is_categorized and parent_sale_id is null
        `, restaurantID, orderID, items)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetEntryCategory implements sync.ClassifierStore.
func (s *Store) SetEntryCategory(ctx context.Context, restaurantID, entryID, categoryID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `
        update sale_entries
        set category_id = $1, is_categorized = true
        where id = $2 and restaurant_id = $3
    `, categoryID, entryID, restaurantID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// IncrementRuleUsage implements sync.ClassifierStore.
func (s *Store) IncrementRuleUsage(ctx context.Context, ruleID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `
        update category_rules set usage_count = usage_count + 1 where id = $1
    `, ruleID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// classifyRow is the per-row hook applied to individual writes while the
// suspension gate is down. It runs on the caller's transaction so a rolled
// back write never leaves a stray usage increment behind.
func (s *Store) classifyRow(ctx context.Context, tx pgx.Tx, ruleSet []rules.Rule, e *ledger.Entry) error {
	if s.suspended.Load() > 0 {
		return nil
	}
	if !e.IsRevenue() || e.IsCategorized {
		return nil
	}
	hint, _ := e.Metadata.Get("category_hint")
	for _, r := range ruleSet {
		ok, err := r.Match(e.Name, hint)
		if err != nil || !ok {
			continue
		}
		cid := r.CategoryID
		e.CategoryID = &cid
		e.IsCategorized = true
		_, err = tx.Exec(ctx, `
            update category_rules set usage_count = usage_count + 1 where id = $1
        `, r.ID)
		return err
	}
	return nil
}

// --- Splits ---

// CreateSplit divides a revenue row into child rows. Children go through the
// per-row classification hook like any other single-row write; classification
// and the child inserts commit together. A parent that already has children
// cannot be split again.
func (s *Store) CreateSplit(ctx context.Context, restaurantID, parentID uuid.UUID, parts []ledger.SplitPart, now time.Time) ([]ledger.Entry, error) {
	parent, err := s.EntryByID(ctx, restaurantID, parentID)
	if err != nil {
		return nil, err
	}
	children, err := ledger.Split(parent, parts, now)
	if err != nil {
		return nil, err
	}
	ruleSet, err := s.ActiveRules(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var alreadySplit bool
	if err := tx.QueryRow(ctx, `
        select exists(select 1 from sale_entries where restaurant_id = $1 and parent_sale_id = $2)
    `, restaurantID, parentID).Scan(&alreadySplit); err != nil {
		return nil, err
	}
	if alreadySplit {
		return nil, errs.ErrConflict
	}

	for i := range children {
		if err := s.classifyRow(ctx, tx, ruleSet, &children[i]); err != nil {
			return nil, err
		}
	}
	for _, c := range children {
		md, _ := c.Metadata.MarshalStableJSON()
		unitMinor, _ := c.UnitPrice.MinorUnits()
		if _, err := tx.Exec(ctx, `
            insert into sale_entries
                (id, restaurant_id, pos_system, external_order_id, external_item_id,
                 item_type, adjustment_type, name, quantity, currency,
                 unit_price_minor, total_price_minor, sold_at,
                 category_id, is_categorized, parent_sale_id, metadata, synced_at)
            values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        `, c.ID, c.RestaurantID, c.POSSystem, c.ExternalOrderID, c.ExternalItemID,
			c.ItemType, c.AdjustmentType, c.Name, c.Quantity.String(), c.TotalPrice.Curr().Code(),
			unitMinor, c.TotalMinor(), c.SoldAt,
			c.CategoryID, c.IsCategorized, c.ParentSaleID, md, c.SyncedAt); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return children, nil
}

// --- Rules and categories ---

// CreateRule validates and stores a classification rule. The target category
// must belong to the restaurant and not be reserved.
func (s *Store) CreateRule(ctx context.Context, r rules.Rule) (rules.Rule, error) {
	if err := r.Validate(); err != nil {
		return rules.Rule{}, err
	}
	var reserved bool
	err := s.pool.QueryRow(ctx, `
        select reserved from categories where id = $1 and restaurant_id = $2
    `, r.CategoryID, r.RestaurantID).Scan(&reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return rules.Rule{}, errs.ErrNotFound
	}
	if err != nil {
		return rules.Rule{}, err
	}
	if reserved {
		return rules.Rule{}, errs.ErrUnprocessable
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if _, err := s.pool.Exec(ctx, `
        insert into category_rules (id, restaurant_id, priority, field, pattern, category_id, active, usage_count)
        values ($1,$2,$3,$4,$5,$6,$7,$8)
    `, r.ID, r.RestaurantID, r.Priority, r.Field, r.Pattern, r.CategoryID, r.Active, r.UsageCount); err != nil {
		return rules.Rule{}, err
	}
	return r, nil
}

// RulesByRestaurant lists a restaurant's rules best-first.
func (s *Store) RulesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]rules.Rule, error) {
	rows, err := s.pool.Query(ctx, `
        select id, restaurant_id, priority, field, pattern, category_id, active, usage_count
        from category_rules
        where restaurant_id = $1
        order by priority desc, id asc
    `, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]rules.Rule, 0)
	for rows.Next() {
		var r rules.Rule
		if err := rows.Scan(&r.ID, &r.RestaurantID, &r.Priority, &r.Field, &r.Pattern, &r.CategoryID, &r.Active, &r.UsageCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateCategory adds a custom category. The code is derived from the label
// unless one is supplied; reserved dictionary codes cannot be taken over.
func (s *Store) CreateCategory(ctx context.Context, restaurantID uuid.UUID, code, label string) (ledger.Category, error) {
	if code == "" {
		code = slug.Slugify(label)
	}
	if !slug.IsSlug(code) {
		return ledger.Category{}, errs.ErrInvalid
	}
	if dictionary.IsReserved(code) {
		return ledger.Category{}, errs.ErrUnprocessable
	}
	c := ledger.Category{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		Code:         code,
		Label:        label,
	}
	tag, err := s.pool.Exec(ctx, `
        insert into categories (id, restaurant_id, code, label, reserved)
        values ($1,$2,$3,$4,false)
        on conflict (restaurant_id, code) do nothing
    `, c.ID, c.RestaurantID, c.Code, c.Label)
	if err != nil {
		return ledger.Category{}, err
	}
	if tag.RowsAffected() == 0 {
		return ledger.Category{}, errs.ErrConflict
	}
	return c, nil
}

// CategoriesByRestaurant lists a restaurant's categories sorted by code.
func (s *Store) CategoriesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]ledger.Category, error) {
	rows, err := s.pool.Query(ctx, `
        select id, restaurant_id, code, label, reserved
        from categories
        where restaurant_id = $1
        order by code
    `, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Category, 0)
	for rows.Next() {
		var c ledger.Category
		if err := rows.Scan(&c.ID, &c.RestaurantID, &c.Code, &c.Label, &c.Reserved); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- helpers ---

func decimalPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
