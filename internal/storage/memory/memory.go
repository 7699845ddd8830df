package memory

// Package memory provides a simple in-memory implementation used for
// development and tests. It keeps code paths easy to follow while the
// postgres store carries the same semantics for real deployments.
import (
	"context"
	"sort"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hmaung/salesync/internal/dictionary"
	"github.com/hmaung/salesync/internal/errs"
	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/pos"
	"github.com/hmaung/salesync/internal/rules"
	"github.com/hmaung/salesync/internal/slug"
	"github.com/hmaung/salesync/internal/sync"
)

// orderKey addresses one replicated order within a restaurant.
type orderKey struct {
	RestaurantID uuid.UUID
	ExternalID   string
}

// Store is an in-memory implementation of the sync and API storage
// interfaces. It is guarded by an RWMutex for concurrent reads/writes.
type Store struct {
	mu              stdsync.RWMutex
	restaurantUsers map[uuid.UUID]map[uuid.UUID]struct{}
	connections     map[uuid.UUID]sync.Connection
	orders          map[orderKey]pos.OrderBundle
	entries         map[uuid.UUID]ledger.Entry
	// keyIndex maps natural keys of parentless rows to entry ids; split
	// children are excluded so a resync can never collide with them.
	keyIndex   map[ledger.Key]uuid.UUID
	categories map[uuid.UUID]ledger.Category
	rules      map[uuid.UUID]rules.Rule

	// suspended gates the per-row classification hook. Bulk reconciliation
	// raises it so classification happens once per run, not once per row.
	suspended atomic.Int32
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		restaurantUsers: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		connections:     make(map[uuid.UUID]sync.Connection),
		orders:          make(map[orderKey]pos.OrderBundle),
		entries:         make(map[uuid.UUID]ledger.Entry),
		keyIndex:        make(map[ledger.Key]uuid.UUID),
		categories:      make(map[uuid.UUID]ledger.Category),
		rules:           make(map[uuid.UUID]rules.Rule),
	}
}

// Seed helpers for local dev/tests.

func (s *Store) SeedRestaurantUser(restaurantID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.restaurantUsers[restaurantID]
	if !ok {
		m = make(map[uuid.UUID]struct{})
		s.restaurantUsers[restaurantID] = m
	}
	m[userID] = struct{}{}
}

func (s *Store) SeedConnection(c sync.Connection) {
	s.mu.Lock()
	s.connections[c.ID] = c
	s.mu.Unlock()
}

// SeedOrder stores (or replaces) one replicated order bundle, the way the
// replication pipeline would.
func (s *Store) SeedOrder(b pos.OrderBundle) {
	s.mu.Lock()
	s.orders[orderKey{RestaurantID: b.Order.RestaurantID, ExternalID: b.Order.ExternalID}] = b
	s.mu.Unlock()
}

func (s *Store) SeedRule(r rules.Rule) {
	s.mu.Lock()
	s.rules[r.ID] = r
	s.mu.Unlock()
}

// SeedCategories provisions the curated category set for a restaurant and
// returns them keyed by code.
func (s *Store) SeedCategories(restaurantID uuid.UUID) map[string]ledger.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ledger.Category)
	for _, def := range dictionary.Defaults() {
		c := ledger.Category{
			ID:           uuid.New(),
			RestaurantID: restaurantID,
			Code:         def.Code,
			Label:        def.Label,
			Reserved:     def.Reserved,
		}
		s.categories[c.ID] = c
		out[c.Code] = c
	}
	return out
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.restaurantUsers = map[uuid.UUID]map[uuid.UUID]struct{}{}
	s.connections = map[uuid.UUID]sync.Connection{}
	s.orders = map[orderKey]pos.OrderBundle{}
	s.entries = map[uuid.UUID]ledger.Entry{}
	s.keyIndex = map[ledger.Key]uuid.UUID{}
	s.categories = map[uuid.UUID]ledger.Category{}
	s.rules = map[uuid.UUID]rules.Rule{}
	s.mu.Unlock()
}

// HasRestaurantAccess implements sync.Store.
func (s *Store) HasRestaurantAccess(_ context.Context, userID, restaurantID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.restaurantUsers[restaurantID]
	if !ok {
		return false, nil
	}
	_, ok = m[userID]
	return ok, nil
}

// ActiveConnection implements sync.Store.
func (s *Store) ActiveConnection(_ context.Context, restaurantID uuid.UUID) (sync.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.connections {
		if c.RestaurantID == restaurantID && c.Active {
			return c, nil
		}
	}
	return sync.Connection{}, errs.ErrNotConnected
}

// ActiveConnections implements sync.Store.
func (s *Store) ActiveConnections(_ context.Context) ([]sync.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sync.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// SetLastSyncedAt implements sync.Store.
func (s *Store) SetLastSyncedAt(_ context.Context, connectionID uuid.UUID, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[connectionID]
	if !ok {
		return errs.ErrNotFound
	}
	c.LastSyncedAt = &t
	s.connections[connectionID] = c
	return nil
}

// OrdersInWindow implements sync.Store.
func (s *Store) OrdersInWindow(_ context.Context, restaurantID uuid.UUID, posSystem string, w sync.Window) ([]pos.OrderBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pos.OrderBundle
	for _, b := range s.orders {
		if b.Order.RestaurantID != restaurantID {
			continue
		}
		if posSystem != "" && b.Order.POSSystem != posSystem {
			continue
		}
		if !w.Contains(b.Order.OrderedAt) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order.OrderedAt.Before(out[j].Order.OrderedAt) })
	return out, nil
}

// EntriesInWindow implements sync.Store. Only parentless rows are returned;
// split children are invisible to reconciliation.
func (s *Store) EntriesInWindow(_ context.Context, restaurantID uuid.UUID, posSystem string, w sync.Window) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Entry
	for _, id := range s.keyIndex {
		e := s.entries[id]
		if e.RestaurantID != restaurantID {
			continue
		}
		if posSystem != "" && e.POSSystem != posSystem {
			continue
		}
		if !w.Contains(e.SoldAt) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SoldAt.Equal(out[j].SoldAt) {
			return out[i].SoldAt.Before(out[j].SoldAt)
		}
		return out[i].ExternalItemID < out[j].ExternalItemID
	})
	return out, nil
}

// ApplyReconciliation implements sync.Store: retractions and upserts commit
// together under the write lock, so a reader never observes a half-merged
// window. On key conflict the incoming row wins except for user-owned
// fields, which are merged keep-if-set.
func (s *Store) ApplyReconciliation(_ context.Context, restaurantID uuid.UUID, retract []ledger.Key, entries []ledger.Entry) (written, retracted int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range retract {
		if k.RestaurantID != restaurantID {
			continue
		}
		id, ok := s.keyIndex[k]
		if !ok {
			continue
		}
		delete(s.entries, id)
		delete(s.keyIndex, k)
		retracted++
	}

	for _, e := range entries {
		if e.RestaurantID != restaurantID {
			continue
		}
		if id, ok := s.keyIndex[e.Key]; ok {
			e = ledger.MergeForResync(s.entries[id], e)
		}
		s.classifyRowLocked(&e)
		s.entries[e.ID] = e
		s.keyIndex[e.Key] = e.ID
		written++
	}
	return written, retracted, nil
}

// SuspendAutoClassify implements sync.Store. Resume is idempotent: calling
// it twice releases the suspension once.
func (s *Store) SuspendAutoClassify() (resume func()) {
	s.suspended.Add(1)
	var once stdsync.Once
	return func() {
		once.Do(func() { s.suspended.Add(-1) })
	}
}

// ActiveRules implements sync.ClassifierStore.
func (s *Store) ActiveRules(_ context.Context, restaurantID uuid.UUID) ([]rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRulesLocked(restaurantID), nil
}

func (s *Store) activeRulesLocked(restaurantID uuid.UUID) []rules.Rule {
	var out []rules.Rule
	for _, r := range s.rules {
		if r.RestaurantID == restaurantID && r.Active {
			out = append(out, r)
		}
	}
	rules.SortByPriority(out)
	return out
}

// RevenueRowsToClassify implements sync.ClassifierStore.
func (s *Store) RevenueRowsToClassify(_ context.Context, restaurantID uuid.UUID, keys []ledger.Key) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Entry
	for _, k := range keys {
		if k.RestaurantID != restaurantID {
			continue
		}
		id, ok := s.keyIndex[k]
		if !ok {
			continue
		}
		e := s.entries[id]
		if e.IsRevenue() && !e.IsCategorized {
			out = append(out, e)
		}
	}
	return out, nil
}

// SetEntryCategory implements sync.ClassifierStore.
func (s *Store) SetEntryCategory(_ context.Context, restaurantID, entryID, categoryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok || e.RestaurantID != restaurantID {
		return errs.ErrNotFound
	}
	cid := categoryID
	e.CategoryID = &cid
	e.IsCategorized = true
	s.entries[entryID] = e
	return nil
}

// IncrementRuleUsage implements sync.ClassifierStore.
func (s *Store) IncrementRuleUsage(_ context.Context, ruleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return errs.ErrNotFound
	}
	r.UsageCount++
	s.rules[ruleID] = r
	return nil
}

// classifyRowLocked is the per-row hook that fires on individual writes.
// Bulk reconciliation suspends it and classifies once per run instead.
// Caller must hold s.mu (write lock).
func (s *Store) classifyRowLocked(e *ledger.Entry) {
	if s.suspended.Load() > 0 {
		return
	}
	if !e.IsRevenue() || e.IsCategorized {
		return
	}
	hint, _ := e.Metadata.Get("category_hint")
	for _, r := range s.activeRulesLocked(e.RestaurantID) {
		ok, err := r.Match(e.Name, hint)
		if err != nil || !ok {
			continue
		}
		cid := r.CategoryID
		e.CategoryID = &cid
		e.IsCategorized = true
		r.UsageCount++
		s.rules[r.ID] = r
		return
	}
}

// EntryByID returns one ledger row of a restaurant.
func (s *Store) EntryByID(_ context.Context, restaurantID, entryID uuid.UUID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryID]
	if !ok || e.RestaurantID != restaurantID {
		return ledger.Entry{}, errs.ErrNotFound
	}
	return e, nil
}

// EntriesByOrder returns every ledger row of one order, split children
// included, ordered by item id for stable output.
func (s *Store) EntriesByOrder(_ context.Context, restaurantID uuid.UUID, externalOrderID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range s.entries {
		if e.RestaurantID == restaurantID && e.ExternalOrderID == externalOrderID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalItemID < out[j].ExternalItemID })
	return out, nil
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

// CreateSplit divides a revenue row into child rows. Children go through the
// per-row classification hook like any other single-row write. A parent that
// already has children cannot be split again.
func (s *Store) CreateSplit(_ context.Context, restaurantID, parentID uuid.UUID, parts []ledger.SplitPart, now time.Time) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.entries[parentID]
	if !ok || parent.RestaurantID != restaurantID {
		return nil, errs.ErrNotFound
	}
	children, err := ledger.Split(parent, parts, now)
	if err != nil {
		return nil, err
	}
	for _, e := range s.entries {
		if e.ParentSaleID != nil && *e.ParentSaleID == parentID {
			return nil, errs.ErrConflict
		}
	}
	for i := range children {
		s.classifyRowLocked(&children[i])
		s.entries[children[i].ID] = children[i]
	}
	return children, nil
}

// CreateRule validates and stores a classification rule.
func (s *Store) CreateRule(_ context.Context, r rules.Rule) (rules.Rule, error) {
	if err := r.Validate(); err != nil {
		return rules.Rule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.categories[r.CategoryID]
	if !ok || cat.RestaurantID != r.RestaurantID {
		return rules.Rule{}, errs.ErrNotFound
	}
	if cat.Reserved {
		return rules.Rule{}, errs.ErrUnprocessable
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.rules[r.ID] = r
	return r, nil
}

// RulesByRestaurant lists a restaurant's rules best-first.
func (s *Store) RulesByRestaurant(_ context.Context, restaurantID uuid.UUID) ([]rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rules.Rule
	for _, r := range s.rules {
		if r.RestaurantID == restaurantID {
			out = append(out, r)
		}
	}
	rules.SortByPriority(out)
	return out, nil
}

// CreateCategory adds a custom category. The code is derived from the label
// unless one is supplied; reserved dictionary codes cannot be taken over.
func (s *Store) CreateCategory(_ context.Context, restaurantID uuid.UUID, code, label string) (ledger.Category, error) {
	if code == "" {
		code = slug.Slugify(label)
	}
	if !slug.IsSlug(code) {
		return ledger.Category{}, errs.ErrInvalid
	}
	if dictionary.IsReserved(code) {
		return ledger.Category{}, errs.ErrUnprocessable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.RestaurantID == restaurantID && c.Code == code {
			return ledger.Category{}, errs.ErrConflict
		}
	}
	c := ledger.Category{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		Code:         code,
		Label:        label,
	}
	s.categories[c.ID] = c
	return c, nil
}

// CategoriesByRestaurant lists a restaurant's categories sorted by code.
func (s *Store) CategoriesByRestaurant(_ context.Context, restaurantID uuid.UUID) ([]ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Category
	for _, c := range s.categories {
		if c.RestaurantID == restaurantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
