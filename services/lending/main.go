package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"lendcore/config"
	"lendcore/native/bank"
	"lendcore/native/lending"
	"lendcore/native/oracle"
	"lendcore/observability/logging"
	"lendcore/services/lending/server"
	"lendcore/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.toml", "path to node config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LEND_ENV"))
	logger := logging.Setup("lendingd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db storage.Database
	if cfg.DataDir == ":memory:" {
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
	}
	defer db.Close()

	registry, err := cfg.Lending.BuildRegistry()
	if err != nil {
		log.Fatalf("build asset registry: %v", err)
	}

	prices := oracle.NewAggregator([]string{"feed", "manual"}, cfg.Lending.Params().MaxQuoteAge)
	prices.Register("manual", oracle.NewManualOracle())
	if endpoint := strings.TrimSpace(os.Getenv("LEND_PRICE_FEED_URL")); endpoint != "" {
		feed := oracle.NewHTTPFeed(&http.Client{Timeout: 10 * time.Second}, endpoint, os.Getenv("LEND_PRICE_FEED_KEY"))
		prices.Register("feed", feed)
	}

	state := storage.NewLendingState(db)
	vault := bank.NewVault()
	engine := lending.NewEngine(registry, state, vault, prices)
	engine.SetInterestModel(cfg.Lending.Model())
	engine.SetParams(cfg.Lending.Params())
	engine.SetRewardMinter(lending.NewMemoryMinter())

	srv := server.New(server.Config{
		Engine:       engine,
		Liquidations: state,
		Prices:       prices,
		Vault:        vault,
		Log:          logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("lending api listening", "addr", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}
}
