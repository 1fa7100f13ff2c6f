package db

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func insertAged(t *testing.T, repo *Repository, prefix string, age time.Duration, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		rec := sampleRecord(fmt.Sprintf("%s-%d", prefix, i), "resolved")
		rec.CreatedAt = time.Now().Add(-age)
		if _, err := repo.InsertEnhancement(context.Background(), rec); err != nil {
			t.Fatalf("InsertEnhancement() error = %v", err)
		}
	}
}

func countRecords(t *testing.T, database *Database) int {
	t.Helper()
	conn, err := database.conn()
	if err != nil {
		t.Fatalf("conn() error = %v", err)
	}
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM enhancement_history").Scan(&n); err != nil {
		t.Fatalf("count error = %v", err)
	}
	return n
}

func TestCleanup(t *testing.T) {
	database := openTestDatabase(t)
	repo := NewRepository(database)
	insertAged(t, repo, "old", 45*24*time.Hour, 3)
	insertAged(t, repo, "recent", 2*24*time.Hour, 2)

	result, err := database.Cleanup(context.Background(), 30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if result.Deleted != 3 {
		t.Errorf("Deleted = %d, want 3", result.Deleted)
	}
	if got := countRecords(t, database); got != 2 {
		t.Errorf("remaining = %d, want 2", got)
	}
}

func TestCleanupRejectsNegativeRetention(t *testing.T) {
	database := openTestDatabase(t)
	if _, err := database.Cleanup(context.Background(), -1); err == nil {
		t.Error("Cleanup(-1) expected error")
	}
}

func TestCleanupCancelledContext(t *testing.T) {
	database := openTestDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := database.Cleanup(ctx, 30); err == nil {
		t.Error("Cleanup() with cancelled context expected error")
	}
}

func TestCleanupOnClosedDatabase(t *testing.T) {
	database := openTestDatabase(t)
	database.Close()
	if _, err := database.Cleanup(context.Background(), 30); err == nil {
		t.Error("Cleanup() on closed database expected error")
	}
}

func TestCleanupScheduler(t *testing.T) {
	database := openTestDatabase(t)
	insertAged(t, NewRepository(database), "old", 10*24*time.Hour, 2)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan CleanupResult, 4)
	done := database.StartCleanupScheduler(ctx, CleanupSchedulerConfig{
		RetentionDays: 5,
		Interval:      time.Hour,
		OnCleanup: func(result CleanupResult, err error) {
			if err == nil {
				results <- result
			}
		},
	})

	select {
	case r := <-results:
		if r.Deleted != 2 {
			t.Errorf("initial pass deleted %d, want 2", r.Deleted)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initial cleanup did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
