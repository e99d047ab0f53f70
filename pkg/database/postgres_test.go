package database

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gerhard-ee/klondike/internal/config"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// setupPostgres connects to the database named by KLONDIKE_TEST_POSTGRES_HOST
// and friends, skipping the test when none is configured
func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	host := os.Getenv("KLONDIKE_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("KLONDIKE_TEST_POSTGRES_HOST not set")
	}

	cfg := &config.Config{
		Type:     "postgres",
		Host:     host,
		Port:     getEnvOrDefaultInt("KLONDIKE_TEST_POSTGRES_PORT", 5432),
		User:     getEnvOrDefault("KLONDIKE_TEST_POSTGRES_USER", "postgres"),
		Password: getEnvOrDefault("KLONDIKE_TEST_POSTGRES_PASSWORD", "postgres"),
		Database: getEnvOrDefault("KLONDIKE_TEST_POSTGRES_DB", "klondike_test"),
		SSLMode:  "disable",
	}

	db, err := NewPostgres(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresWrite(t *testing.T) {
	ctx := context.Background()
	db := setupPostgres(t)

	if err := db.exec(ctx, "DROP TABLE IF EXISTS public.klondike_orders"); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	t.Cleanup(func() { db.exec(context.Background(), "DROP TABLE IF EXISTS public.klondike_orders") })

	batch := testBatch(
		[]any{int64(1), "widget", 9.5, true},
		[]any{int64(2), nil, nil, false},
	)
	if err := db.Write(ctx, batch, "public.klondike_orders", PostgresOptions{IfExists: Fail}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := db.Write(ctx, batch, "public.klondike_orders", nil); err != nil {
		t.Fatalf("append Write failed: %v", err)
	}

	exists, err := db.TableExists(ctx, "public.klondike_orders")
	if err != nil || !exists {
		t.Fatalf("TableExists = %v, %v", exists, err)
	}

	got, err := db.Read(ctx, "SELECT id, name, price, active FROM public.klondike_orders ORDER BY id LIMIT 2")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := [][]any{
		{int64(1), "widget", 9.5, true},
		{int64(1), "widget", 9.5, true},
	}
	if diff := cmp.Diff(want, got.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if err := db.Write(ctx, batch, "public.klondike_orders", PostgresOptions{IfExists: Truncate}); err != nil {
		t.Fatalf("truncate Write failed: %v", err)
	}
	count, err := db.Read(ctx, "SELECT COUNT(*) AS n FROM public.klondike_orders")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n := count.Rows[0][0]; n != int64(2) {
		t.Errorf("after truncate: %v rows, want 2", n)
	}
}
