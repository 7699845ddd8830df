package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/hmaung/salesync/internal/errs"
	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/pos"
)

// Caller identifies who asked for a sync. System callers (the scheduler,
// internal jobs) bypass the restaurant access check; user callers must be
// members of the restaurant.
type Caller struct {
	UserID uuid.UUID
	System bool
}

// Connection is a restaurant's link to a POS provider. LastSyncedAt is the
// incremental checkpoint; nil means the connection has never synced.
type Connection struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	POSSystem    string
	Active       bool
	LastSyncedAt *time.Time
}

// Store defines everything the reconciler needs from storage.
type Store interface {
	ClassifierStore

	// ActiveConnection returns the restaurant's active POS connection, or
	// errs.ErrNotConnected when there is none.
	ActiveConnection(ctx context.Context, restaurantID uuid.UUID) (Connection, error)
	// ActiveConnections lists every active connection across restaurants.
	ActiveConnections(ctx context.Context) ([]Connection, error)
	// HasRestaurantAccess reports whether the user is a member of the restaurant.
	HasRestaurantAccess(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error)

	// OrdersInWindow loads the replicated orders (with items and payments)
	// whose order timestamp falls inside the window.
	OrdersInWindow(ctx context.Context, restaurantID uuid.UUID, posSystem string, w Window) ([]pos.OrderBundle, error)
	// EntriesInWindow loads the existing parentless ledger rows whose sold-at
	// timestamp falls inside the window.
	EntriesInWindow(ctx context.Context, restaurantID uuid.UUID, posSystem string, w Window) ([]ledger.Entry, error)
	// ApplyReconciliation atomically deletes the retracted keys and upserts
	// the desired rows, merging user-owned fields on conflict. It returns
	// rows written and rows actually retracted.
	ApplyReconciliation(ctx context.Context, restaurantID uuid.UUID, retract []ledger.Key, entries []ledger.Entry) (written, retracted int64, err error)
	// SuspendAutoClassify turns off the per-row classification hook until the
	// returned resume func is called. Resume is idempotent.
	SuspendAutoClassify() (resume func())
	// SetLastSyncedAt advances the connection's incremental checkpoint.
	SetLastSyncedAt(ctx context.Context, connectionID uuid.UUID, t time.Time) error
}

// Result reports what one reconciliation run did.
type Result struct {
	RestaurantID uuid.UUID
	POSSystem    string
	Window       Window
	Written      int64
	Retracted    int64
	Classified   int
}

// Service drives reconciliation runs.
type Service interface {
	// Sync reconciles the restaurant's full replicated history.
	Sync(ctx context.Context, caller Caller, restaurantID uuid.UUID) (Result, error)
	// SyncRange reconciles an explicit window.
	SyncRange(ctx context.Context, caller Caller, restaurantID uuid.UUID, from, to time.Time) (Result, error)
	// SyncAll runs an incremental sync for every active connection. It is
	// the scheduled entry point and keeps going past per-restaurant
	// failures, returning the results that succeeded alongside the first
	// error observed.
	SyncAll(ctx context.Context, caller Caller) ([]Result, error)
}

type service struct {
	store    Store
	log      *slog.Logger
	now      func() time.Time
	lookback time.Duration

	mu    stdsync.Mutex
	locks map[uuid.UUID]*stdsync.Mutex
}

// New builds the sync service. A zero lookback uses DefaultLookback.
func New(store Store, log *slog.Logger, lookback time.Duration) Service {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &service{
		store:    store,
		log:      log,
		now:      time.Now,
		lookback: lookback,
		locks:    make(map[uuid.UUID]*stdsync.Mutex),
	}
}

func (s *service) Sync(ctx context.Context, caller Caller, restaurantID uuid.UUID) (Result, error) {
	if err := s.authorize(ctx, caller, restaurantID); err != nil {
		return Result{}, err
	}
	conn, err := s.connection(ctx, restaurantID)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, conn, FullWindow(), true)
}

func (s *service) SyncRange(ctx context.Context, caller Caller, restaurantID uuid.UUID, from, to time.Time) (Result, error) {
	if err := s.authorize(ctx, caller, restaurantID); err != nil {
		return Result{}, err
	}
	w, err := ExplicitWindow(from, to)
	if err != nil {
		return Result{}, err
	}
	conn, err := s.connection(ctx, restaurantID)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, conn, w, false)
}

func (s *service) SyncAll(ctx context.Context, caller Caller) ([]Result, error) {
	if !caller.System {
		return nil, fmt.Errorf("%w: sync-all is restricted to system callers", errs.ErrForbidden)
	}
	conns, err := s.store.ActiveConnections(ctx)
	if err != nil {
		return nil, err
	}
	var (
		results  []Result
		firstErr error
	)
	for _, conn := range conns {
		w := IncrementalWindow(conn.LastSyncedAt, s.now(), s.lookback)
		res, err := s.run(ctx, conn, w, true)
		if err != nil {
			s.log.Error("scheduled sync failed", "restaurant_id", conn.RestaurantID, "connection_id", conn.ID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	return results, firstErr
}

// connection resolves the restaurant's active connection for the manual
// entry points. SyncAll already holds the connection it is iterating.
func (s *service) connection(ctx context.Context, restaurantID uuid.UUID) (Connection, error) {
	conn, err := s.store.ActiveConnection(ctx, restaurantID)
	if err != nil {
		syncRuns.WithLabelValues("error").Inc()
		return Connection{}, err
	}
	return conn, nil
}

// run executes one reconciliation of conn under the restaurant's
// single-flight lock: load the window's source orders, regenerate the
// desired ledger rows, compute retractions against the existing rows, apply
// both as one atomic merge with the per-row classification hook suspended,
// then classify the written rows in a single batch. advanceCheckpoint is
// false for explicit windows: a manual sync of a past range must not move
// the incremental checkpoint forward past orders it never looked at.
func (s *service) run(ctx context.Context, conn Connection, w Window, advanceCheckpoint bool) (Result, error) {
	restaurantID := conn.RestaurantID
	unlock := s.lockRestaurant(restaurantID)
	defer unlock()

	bundles, err := s.store.OrdersInWindow(ctx, restaurantID, conn.POSSystem, w)
	if err != nil {
		syncRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}

	syncedAt := s.now()
	var desired []ledger.Entry
	for _, b := range bundles {
		desired = append(desired, Generate(b, syncedAt)...)
	}

	existing, err := s.store.EntriesInWindow(ctx, restaurantID, conn.POSSystem, w)
	if err != nil {
		syncRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}
	stale := Retractions(existing, desired)

	resume := s.store.SuspendAutoClassify()
	defer resume()

	written, retracted, err := s.store.ApplyReconciliation(ctx, restaurantID, stale, desired)
	if err != nil {
		syncRuns.WithLabelValues("error").Inc()
		return Result{}, err
	}

	keys := make([]ledger.Key, len(desired))
	for i, e := range desired {
		keys[i] = e.Key
	}
	classified, err := Classify(ctx, s.store, s.log, restaurantID, keys)
	if err != nil {
		// The merge is already committed; a classification failure leaves
		// rows uncategorized for the next run rather than failing the sync.
		s.log.Error("batch classification failed", "restaurant_id", restaurantID, "err", err)
	}

	if advanceCheckpoint {
		if err := s.store.SetLastSyncedAt(ctx, conn.ID, syncedAt); err != nil {
			s.log.Error("could not advance sync checkpoint", "connection_id", conn.ID, "err", err)
		}
	}

	rowsWritten.Add(float64(written))
	rowsRetracted.Add(float64(retracted))
	rowsClassified.Add(float64(classified))
	syncRuns.WithLabelValues("ok").Inc()

	s.log.Info("reconciliation run complete",
		"restaurant_id", restaurantID,
		"pos_system", conn.POSSystem,
		"full_window", w.IsFull(),
		"orders", len(bundles),
		"written", written,
		"retracted", retracted,
		"classified", classified,
	)
	return Result{
		RestaurantID: restaurantID,
		POSSystem:    conn.POSSystem,
		Window:       w,
		Written:      written,
		Retracted:    retracted,
		Classified:   classified,
	}, nil
}

func (s *service) authorize(ctx context.Context, caller Caller, restaurantID uuid.UUID) error {
	if restaurantID == uuid.Nil {
		return errs.ErrInvalid
	}
	if caller.System {
		return nil
	}
	if caller.UserID == uuid.Nil {
		return fmt.Errorf("%w: caller is not identified", errs.ErrForbidden)
	}
	ok, err := s.store.HasRestaurantAccess(ctx, caller.UserID, restaurantID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %s is not a member of restaurant %s", errs.ErrForbidden, caller.UserID, restaurantID)
	}
	return nil
}

// lockRestaurant serializes runs per restaurant within this process. The
// postgres store additionally takes a transaction-scoped advisory lock so
// concurrent processes cannot interleave merges either.
func (s *service) lockRestaurant(id uuid.UUID) (unlock func()) {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &stdsync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}
