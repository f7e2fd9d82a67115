package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finpal/splitledger/internal/engine"
	"github.com/finpal/splitledger/internal/middleware"
	"github.com/finpal/splitledger/internal/service"
	"github.com/finpal/splitledger/internal/storage/sqlite"
	"github.com/finpal/splitledger/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logging.Setup()

	dbPath := getEnv("DB_PATH", "./data/splitledger.db")
	port := getEnv("PORT", "8080")

	store, err := sqlite.New(dbPath)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("storage initialized", "database", dbPath)

	manager := engine.New(store)

	mux := http.NewServeMux()
	service.NewSettlementService(manager).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := fmt.Sprintf(":%s", port)
	slog.Info("settlement service starting", "address", addr)
	if err := http.ListenAndServe(addr, middleware.Logging(mux)); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
