package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e4c-edu/settlement/internal/api"
	"github.com/e4c-edu/settlement/internal/client"
	"github.com/e4c-edu/settlement/internal/config"
	"github.com/e4c-edu/settlement/internal/logging"
	"github.com/e4c-edu/settlement/internal/store"
	"github.com/e4c-edu/settlement/stellar"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.Init(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.ResolveWalletPassword(); err != nil {
		log.Fatalf("resolve wallet password: %v", err)
	}

	logger := logging.Setup("e4c-settlement", config.GetStellarNetwork())

	password, err := config.GetWalletPasswordBytes()
	if err != nil {
		log.Fatalf("wallet password: %v", err)
	}
	st, err := store.NewSQLiteStore(config.GetDatabasePath(), password)
	clear(password)
	if err != nil {
		log.Fatalf("open bookkeeping store: %v", err)
	}
	defer st.Close()

	ledger := client.NewHorizonClient(
		config.GetHorizonURL(),
		config.GetFriendbotURL(),
		config.GetHTTPTimeout(),
	)

	service := stellar.NewService(st, ledger, stellar.Config{
		NetworkName:      config.GetStellarNetwork(),
		BaseFeeStroops:   config.GetBaseFeeStroops(),
		TxTimeoutSeconds: config.GetTxTimeoutSeconds(),
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:    ":" + config.GetPort(),
		Handler: api.SetupRouter(service, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Operational reconciliation sweep: derived balances self-heal even when
	// a settlement request hit the partial-failure window.
	if interval := config.GetReconcileInterval(); interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := service.ReconcileAll(ctx); err != nil {
						logger.Error("reconciliation sweep finished with errors", "err", err)
					}
				}
			}
		}()
	}

	go func() {
		logger.Info("settlement service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down settlement service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
		os.Exit(1)
	}
}
