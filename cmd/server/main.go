/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire ledger, inventory, booking engine, reporting
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  Flags win over environment variables; .env is loaded first so local
  overrides work without exporting anything.
  -port / PORT        HTTP server port (default: 8080)
  -db / DB_PATH       SQLite database path (default: booking.db)
                      Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/booking.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/transitrail/booking-engine/api"
	"github.com/transitrail/booking-engine/booking"
	"github.com/transitrail/booking-engine/inventory"
	"github.com/transitrail/booking-engine/ledger"
	"github.com/transitrail/booking-engine/logging"
	"github.com/transitrail/booking-engine/metrics"
	"github.com/transitrail/booking-engine/notify"
	"github.com/transitrail/booking-engine/reporting"
	"github.com/transitrail/booking-engine/store/sqlite"
	"github.com/transitrail/booking-engine/ticket"
)

func main() {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "booking.db"), "SQLite database path")
	flag.Parse()

	log := logging.New()
	defer log.Sync()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New("booking_engine")

	wallets := ledger.New(store, m)
	seats := inventory.New(store)
	reports := reporting.New(store, store)

	dispatcher := &notify.AsyncDispatcher{
		Notifier:  &notify.LogNotifier{Log: log},
		Log:       log,
		OnFailure: m.NotifyFailures.Inc,
	}

	engine := booking.NewEngine(booking.Config{
		Directory:  store,
		Inventory:  seats,
		Ledger:     wallets,
		Bookings:   store,
		Renderer:   ticket.NewPDFRenderer(),
		Dispatcher: dispatcher,
		Log:        log,
		Metrics:    m,
	})

	handler := api.NewHandler(engine, wallets, store, reports, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", *port, "db", *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
