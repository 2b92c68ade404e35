package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeoahs/marketplace/internal/api"
	"github.com/jeoahs/marketplace/internal/config"
	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/ledger"
	"github.com/jeoahs/marketplace/internal/payments"
	"github.com/jeoahs/marketplace/internal/repository"
	"github.com/jeoahs/marketplace/internal/settlement"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("initializing database", zap.String("path", cfg.DBPath))
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to init db", zap.Error(err))
	}
	defer db.Close()

	// Repositories.
	productRepo := repository.NewProductRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	walletRepo := repository.NewWalletRepo(db)

	// Services.
	schedule, err := settlement.NewFeeSchedule(cfg.PlatformFeeRate, cfg.PlanFeeRates)
	if err != nil {
		logger.Fatal("invalid fee schedule", zap.Error(err))
	}
	engine := settlement.NewEngine(db, productRepo, orderRepo, schedule, logger)
	walletLedger := ledger.New(db, orderRepo, walletRepo, logger)
	reconciler := payments.NewReconciler(orderRepo, walletLedger, cfg.PendingPaymentTimeout, logger)

	// Seed catalog if the DB is empty.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count, err := productRepo.Count(ctx)
	if err != nil {
		logger.Fatal("failed to count products", zap.Error(err))
	}
	if count == 0 {
		logger.Info("database is empty, seeding products from testdata")
		if err := seedProducts(ctx, productRepo, cfg.SeedPath, logger); err != nil {
			logger.Warn("failed to seed products", zap.Error(err))
		}
	} else {
		logger.Info("catalog already populated, skipping seed", zap.Int("products", count))
	}

	// Revisit stale pending_payment orders so none stays ambiguous.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := reconciler.SweepStalePending(ctx); err != nil {
					logger.Error("stale order sweep failed", zap.Error(err))
				}
			}
		}
	}()

	router := api.NewRouter(engine, reconciler, orderRepo, walletRepo,
		cfg.WebhookSecret, cfg.WebhookTolerance, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("marketplace settlement service listening",
			zap.String("addr", "http://localhost:"+cfg.Port),
			zap.String("api_base", "/api/v1"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func seedProducts(ctx context.Context, repo *repository.ProductRepo, seedPath string, logger *zap.Logger) error {
	// Try multiple possible locations for testdata.
	candidates := []string{
		seedPath,
		filepath.Join(".", seedPath),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, seedPath),
			filepath.Join(dir, "..", "..", seedPath),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			logger.Info("loaded products", zap.String("path", path))
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find %s in any candidate path: %w", seedPath, loadErr)
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return fmt.Errorf("unmarshal products: %w", err)
	}

	inserted, err := repo.BulkInsert(ctx, products)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	logger.Info("seeded products",
		zap.Int("inserted", inserted),
		zap.Int("in_file", len(products)))
	return nil
}
