/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger server. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the SQLite store and migrate the schema
  3. Wire the ledger service, accrual generator and promotion recalculator
  4. Configure the HTTP router and auth
  5. Start the accrual scheduler
  6. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -port              HTTP server port (default: 8080)
  -db                SQLite database path (default: leave.db)
                     Use ":memory:" for an in-memory database
  -jwt-secret        HMAC secret for bearer tokens (required)
  -jwt-issuer        Expected token issuer (default: leave-ledger)
  -accrual-interval  Scheduler check interval (default: 1h)
  -no-scheduler      Disable the accrual scheduler

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the accrual scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db" -jwt-secret="$LEDGER_JWT_SECRET"

  # Run with in-memory database, no scheduler
  ./server -db=":memory:" -jwt-secret=dev -no-scheduler

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
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "leave.db", "SQLite database path")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret for bearer tokens")
	jwtIssuer := flag.String("jwt-issuer", "leave-ledger", "Expected token issuer")
	accrualInterval := flag.Duration("accrual-interval", time.Hour, "Accrual scheduler check interval")
	noScheduler := flag.Bool("no-scheduler", false, "Disable the accrual scheduler")
	flag.Parse()

	if *jwtSecret == "" {
		*jwtSecret = os.Getenv("LEDGER_JWT_SECRET")
	}
	auth, err := api.NewAuthManager(*jwtSecret, *jwtIssuer, 12*time.Hour)
	if err != nil {
		log.Fatalf("Auth configuration: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the engine
	policies := leave.DefaultPolicies()
	access := ledger.DefaultAccessPolicy()
	trail := ledger.NewTrail(store.AuditLog())
	service := ledger.NewService(store, trail, store, access, policies)

	schedule := leave.NewRateSchedule(store, store)
	generator := leave.NewAccrualGenerator(service, store, policies, schedule)
	promotions := leave.NewPromotionRecalculator(service, schedule, store)
	overrides := leave.NewOverrideHandler(service, store, access)

	metrics, registry := api.NewMetrics()
	handler := &api.Handler{
		Service:    service,
		Overrides:  overrides,
		Generator:  generator,
		Promotions: promotions,
		Directory:  store,
		Admin:      store,
		Policies:   policies,
		Metrics:    metrics,
	}

	router := api.NewRouter(handler, auth, registry)

	// Accrual scheduler
	scheduler := api.NewAccrualScheduler(generator, metrics)
	scheduler.CheckInterval = *accrualInterval
	scheduler.Enabled = !*noScheduler
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
