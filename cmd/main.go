package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/hmaung/salesync/internal/httpapi"
	"github.com/hmaung/salesync/internal/pos"
	"github.com/hmaung/salesync/internal/rules"
	"github.com/hmaung/salesync/internal/storage/memory"
	pgstore "github.com/hmaung/salesync/internal/storage/postgres"
	"github.com/hmaung/salesync/internal/sync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local .env is a dev convenience; real deployments set the environment.
	_ = godotenv.Load()

	// Logger (slog to stdout). Level via LOG_LEVEL; format via LOG_FORMAT (json|text, default json)
	logger := buildLoggerFromEnv()
	slog.SetDefault(logger)

	lookback := lookbackFromEnv(logger)

	var store httpapi.Store
	var syncStore sync.Store
	var closeFn func()

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		closeFn = func() { pg.Close() }
		if devSeedEnabled() {
			restaurantID, userID, err := pg.SeedDev(ctx)
			if err != nil {
				logger.Error("dev seed failed", "err", err)
			} else {
				printDevSeedBanner(restaurantID, userID)
			}
		}
		store, syncStore = pg, pg
		logger.Info("storage backend: postgres")
	} else {
		mem := memory.New()
		restaurantID, userID := seedMemoryDev(mem)
		printDevSeedBanner(restaurantID, userID)
		store, syncStore = mem, mem
		logger.Info("storage backend: memory")
	}

	svc := sync.New(syncStore, logger, lookback)

	// Optional in-process scheduler. SYNC_INTERVAL (e.g. "15m") runs the
	// incremental fan-out for every active connection.
	if raw := strings.TrimSpace(os.Getenv("SYNC_INTERVAL")); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil || interval <= 0 {
			logger.Error("invalid SYNC_INTERVAL, scheduler disabled", "value", raw)
		} else {
			go runScheduler(ctx, svc, logger, interval)
		}
	}

	srv := &http.Server{
		Addr:              addrFromEnv(),
		Handler:           httpapi.New(svc, store, logger).Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sales ledger service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeFn != nil {
		closeFn()
	}
}

// runScheduler runs the incremental sync fan-out on a fixed interval until
// the context is cancelled.
func runScheduler(ctx context.Context, svc sync.Service, l *slog.Logger, interval time.Duration) {
	l.Info("sync scheduler started", "interval", interval.String())
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			results, err := svc.SyncAll(ctx, sync.Caller{System: true})
			if err != nil {
				l.Error("scheduled sync finished with failures", "synced", len(results), "err", err)
				continue
			}
			l.Info("scheduled sync complete", "synced", len(results))
		}
	}
}

// seedMemoryDev provisions a restaurant with a connection, categories, a
// classification rule and one replicated order so the API is usable out of
// the box.
func seedMemoryDev(store *memory.Store) (restaurantID, userID uuid.UUID) {
	restaurantID, userID = uuid.New(), uuid.New()
	store.SeedRestaurantUser(restaurantID, userID)
	store.SeedConnection(sync.Connection{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		POSSystem:    "toast",
		Active:       true,
	})
	cats := store.SeedCategories(restaurantID)
	if bev, ok := cats["beverage"]; ok {
		store.SeedRule(rules.Rule{
			ID:           uuid.New(),
			RestaurantID: restaurantID,
			Priority:     5,
			Field:        rules.FieldName,
			Pattern:      "lemonade",
			CategoryID:   bev.ID,
			Active:       true,
		})
	}

	tax := decimal.RequireFromString("1.20")
	tip := decimal.RequireFromString("2.00")
	store.SeedOrder(pos.OrderBundle{
		Order: pos.Order{
			RestaurantID: restaurantID,
			POSSystem:    "toast",
			ExternalID:   "demo-1",
			OrderedAt:    time.Now().UTC().Add(-2 * time.Hour),
			Currency:     "USD",
			Tax:          &tax,
		},
		Items: []pos.OrderItem{
			{OrderExternalID: "demo-1", ExternalID: "it-1", Name: "Cheeseburger", Quantity: decimal.NewFromInt(1), GrossAmount: decimal.RequireFromString("12.00"), NetAmount: decimal.RequireFromString("12.00"), CategoryHint: "mains"},
			{OrderExternalID: "demo-1", ExternalID: "it-2", Name: "Lemonade", Quantity: decimal.NewFromInt(2), GrossAmount: decimal.RequireFromString("4.50"), NetAmount: decimal.RequireFromString("4.50"), CategoryHint: "drinks"},
		},
		Payments: []pos.Payment{
			{ExternalID: "pay-1", OrderExternalID: "demo-1", PaidAt: time.Now().UTC().Add(-90 * time.Minute), Tip: &tip, Status: pos.PaymentStatusPaid, RefundStatus: pos.RefundStatusNone},
		},
	})
	return restaurantID, userID
}

func printDevSeedBanner(restaurantID, userID uuid.UUID) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("restaurant_id: %s\n", restaurantID.String())
	fmt.Printf("user_id: %s\n", userID.String())
	fmt.Println("==================================================")
}

func devSeedEnabled() bool {
	dev := strings.ToLower(strings.TrimSpace(os.Getenv("DEV_SEED")))
	return dev == "1" || dev == "true" || dev == "yes"
}

func addrFromEnv() string {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			return ":" + port
		}
	}
	return ":8080"
}

func lookbackFromEnv(l *slog.Logger) time.Duration {
	raw := strings.TrimSpace(os.Getenv("SYNC_LOOKBACK"))
	if raw == "" {
		return 0 // service default
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		l.Error("invalid SYNC_LOOKBACK, using default", "value", raw)
		return 0
	}
	return d
}

// parseLogLevel maps env values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch s {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "WARNING", "warn", "warning":
		return slog.LevelWarn
	case "ERROR", "ERR", "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLoggerFromEnv() *slog.Logger {
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))
	format := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
