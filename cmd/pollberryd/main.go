// Command pollberryd runs the poll programs on a single-node ledger and
// serves them over HTTP.
//
//	pollberryd -config pollberryd.yaml
//	pollberryd -gen-key keys/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/blockberries/pollberry/api"
	"github.com/blockberries/pollberry/engine"
	"github.com/blockberries/pollberry/privval"
	"github.com/blockberries/pollberry/wal"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml config file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	genKey := flag.String("gen-key", "", "generate a signer key pair in this directory and exit")
	flag.Parse()

	if *genKey != "" {
		if err := generateKey(*genKey); err != nil {
			log.Fatalf("failed to generate key: %v", err)
		}
		return
	}

	cfg, err := loadDaemonConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := newLogger(cfg, *logLevel)
	if err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("pollberryd stopped")
	}
}

func generateKey(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	pv, err := privval.GenerateFilePV(filepath.Join(dir, "signer_key.json"), filepath.Join(dir, "signer_state.json"))
	if err != nil {
		return err
	}
	fmt.Println(pv.GetPubKey().String())
	return nil
}

func run(cfg *daemonConfig, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	w, err := wal.NewFileWALWithOptions(cfg.Engine.WALPath, wal.Options{
		MaxSegmentSize: cfg.Engine.WALMaxSegmentSize,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create WAL: %w", err)
	}

	eng := engine.NewEngine(cfg.Engine, store, w, engine.SystemClock{}, logger)
	result, err := eng.Recover(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"store_slot": result.StoreSlot,
		"executed":   result.Executed,
		"last_slot":  result.LastSlot,
	}).Info("recovered from WAL")

	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Stop()

	srv := api.NewServer(eng, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns the configured account store. A memory store starts
// empty every time and Recover rebuilds it from the whole WAL.
func openStore(ctx context.Context, cfg *engine.Config, logger *log.Logger) (engine.AccountStore, error) {
	switch cfg.Store.Backend {
	case engine.BackendFirestore:
		store, err := engine.NewFirestoreStoreFromConfig(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return engine.NewMemStore(), nil
	}
}
