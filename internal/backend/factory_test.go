package backend

import (
	"context"
	"path/filepath"
	"testing"

	"creditledger/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		if _, err := FromAppConfig(nil); err == nil {
			t.Error("expected error for nil config")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
			t.Error("expected error for unknown backend")
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg, err := FromAppConfig(&config.Config{
			DataBackend:  "sqlite",
			SQLiteDBPath: "/tmp/x.db",
			AMQPURL:      "amqp://localhost",
			AMQPExchange: "ex",
			AMQPQueue:    "q",
		})
		if err != nil {
			t.Fatalf("FromAppConfig() error = %v", err)
		}
		if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/tmp/x.db" || cfg.AMQPQueue != "q" {
			t.Errorf("FromAppConfig() = %+v", cfg)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"invalid", Config{Type: "sheets"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFactory_CreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		if res.Ledger == nil || res.Users == nil {
			t.Fatal("memory backend should provide both stores")
		}
		if res.Events != nil {
			t.Error("memory backend should not publish events")
		}
		if err := res.Ready(ctx); err != nil {
			t.Errorf("Ready() error = %v", err)
		}
	})

	t.Run("sqlite without broker", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{
			Type:         SQLiteBackend,
			SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"),
		})
		if err != nil {
			t.Fatalf("CreateBackend() error = %v", err)
		}
		defer res.Cleanup()

		if res.Events != nil {
			t.Error("Events should be nil without AMQP_URL")
		}
		if err := res.Ready(ctx); err != nil {
			t.Errorf("Ready() error = %v", err)
		}
		loans, err := res.Ledger.ListLoans(ctx, "nobody")
		if err != nil || len(loans) != 0 {
			t.Errorf("ListLoans() = %v, %v", loans, err)
		}
	})

	t.Run("invalid type", func(t *testing.T) {
		if _, err := f.CreateBackend(ctx, Config{Type: "sheets"}); err == nil {
			t.Error("expected error")
		}
	})
}
