package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{"explicit dsn wins", ClientConfig{DSN: "postgres://x", Host: "h"}, "postgres://x"},
		{"defaults", ClientConfig{Host: "db", User: "u", Password: "p", Database: "d"}, "postgres://u:p@db:5432/d?sslmode=disable"},
		{"custom port and ssl", ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "d", SSLMode: "require"}, "postgres://u:p@db:6543/d?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrationFilesEmbedded(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(names) == 0 || names[0] != "001_closed_positions.sql" {
		t.Fatalf("unexpected migrations: %v", names)
	}
	data, err := migrationsFS.ReadFile("migrations/" + names[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(data), "closed_positions") {
		t.Fatalf("migration does not create closed_positions")
	}
}

func TestClosedPositionStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	dsn := os.Getenv("ROUNDBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROUNDBOT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if _, err := c.Pool().Exec(ctx, "DELETE FROM closed_positions WHERE id LIKE 'test-%'"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	store := NewClosedPositionStore(c.Pool())
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	rows := []domain.ClosedPosition{
		{ID: "test-1", Asset: "BTC", Direction: domain.DirectionUp, NetPnL: 1.5, HoldTimeSec: 60, ExitReason: domain.ExitTakeProfit, OpenedAt: base, ClosedAt: base.Add(time.Minute)},
		{ID: "test-2", Asset: "ETH", Direction: domain.DirectionDown, NetPnL: -0.5, HoldTimeSec: 120, ExitReason: domain.ExitStopLoss, OpenedAt: base, ClosedAt: base.Add(2 * time.Minute)},
	}
	for _, p := range rows {
		if err := store.Insert(ctx, p); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := store.Insert(ctx, rows[0]); err != nil {
		t.Fatalf("duplicate Insert: %v", err)
	}

	got, err := store.ListRange(ctx, base, base.Add(time.Hour))
	if err != nil || len(got) != 2 || got[1].ExitReason != domain.ExitStopLoss {
		t.Fatalf("ListRange = %+v, %v", got, err)
	}
	before, err := store.ListBefore(ctx, base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("ListBefore: %v", err)
	}
	found := false
	for _, p := range before {
		if p.ID == "test-2" {
			t.Fatalf("ListBefore returned a later position")
		}
		found = found || p.ID == "test-1"
	}
	if !found {
		t.Fatalf("ListBefore missed test-1")
	}

	sum, err := store.Summary(ctx, base)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Count < 2 || sum.ByReason[domain.ExitTakeProfit] < 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}
