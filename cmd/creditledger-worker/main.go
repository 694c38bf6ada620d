package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"creditledger/internal/amqp"
	"creditledger/internal/cli"
	gsheet "creditledger/internal/sheets/google"
	"creditledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting creditledger-worker")

	cfg := cli.LoadAndValidateWorkerConfig(logger)

	// the worker reads the records the server wrote
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()
	amqpClient.SetPrefetch(cfg.SyncBatchSize)

	var running sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, running.Wait)

	headersCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := sheetsClient.EnsureHeaders(headersCtx); err != nil {
		logger.Error("Failed to write sheet headers", "error", err)
	}
	cancel()

	exportWorker := worker.NewExportWorker(repo, sheetsClient, worker.Config{
		BatchSize:    cfg.SyncBatchSize,
		MaxAttempts:  cfg.SyncMaxAttempts,
		RetryBackoff: cfg.SyncRetryBackoff,
	})

	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup export check", "error", err)
	}

	running.Add(2)
	go func() {
		defer running.Done()
		if err := amqpClient.ConsumeLedgerEvents(ctx, exportWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Ledger event consumption failed", "error", err)
		}
	}()
	go func() {
		defer running.Done()
		exportWorker.RunPeriodic(ctx, cfg.SyncInterval)
	}()

	logger.Info("Worker running",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"batch_size", cfg.SyncBatchSize,
		"interval", cfg.SyncInterval,
		"max_attempts", cfg.SyncMaxAttempts)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
