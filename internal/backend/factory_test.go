package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"finanzas/internal/config"
	"finanzas/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("nil config should fail")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("unknown backend should fail")
	}
	c, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPURL: "amqp://h", AMQPExchange: "ex"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Type != SQLiteBackend || c.SQLiteDBPath != "x.db" || c.AMQPExchange != "ex" {
		t.Errorf("config = %+v", c)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"sqlite amqp without exchange", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db", AMQPURL: "amqp://h"}, true},
		{"memory with amqp", Config{Type: MemoryBackend, AMQPURL: "amqp://h"}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func roundTrip(t *testing.T, res *BackendResult) {
	t.Helper()
	ctx := context.Background()
	if err := res.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	ch := make(chan []core.Record, 4)
	unsub, err := res.Store.Subscribe(ctx, "u", func(r []core.Record) { ch <- r }, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	<-ch
	if _, err := res.Store.Insert(ctx, "u", core.Draft{Type: core.Income, Description: "x", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	select {
	case got := <-ch:
		if len(got) != 1 {
			t.Fatalf("snapshot = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after insert")
	}
}

func TestFactory_Memory(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Cleanup()
	if res.Consume != nil {
		t.Error("memory backend should not consume events")
	}
	roundTrip(t, res)
}

func TestFactory_SQLite(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "f.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Errorf("cleanup: %v", err)
		}
	}()
	if res.Consume != nil {
		t.Error("no AMQP configured, Consume should be nil")
	}
	roundTrip(t, res)
}
