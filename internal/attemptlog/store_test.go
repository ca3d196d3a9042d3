package attemptlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteWriter_WriteListPurge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("new sqlite writer: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	now := time.Now().UTC()
	entries := []Entry{
		{
			TraceID:      "trace-1",
			Model:        "gemini-2.5-flash",
			Client:       "client-1",
			Slot:         "primary",
			Outcome:      "failure",
			ErrorMessage: "429 RESOURCE_EXHAUSTED. quota hit",
			CreatedAt:    now.Add(-2 * time.Hour),
		},
		{
			TraceID:   "trace-1",
			Model:     "gemini-2.5-flash-lite",
			Client:    "client-1",
			Slot:      "secondary",
			Outcome:   "failure",
			CreatedAt: now.Add(-1 * time.Hour),
		},
		{
			TraceID:   "trace-1",
			Model:     "gemini-2.5-flash",
			Client:    "client-2",
			Slot:      "primary",
			Outcome:   "success",
			CreatedAt: now,
		},
	}

	for _, entry := range entries {
		if err := w.Write(context.Background(), entry); err != nil {
			t.Fatalf("write attempt entry: %v", err)
		}
	}

	listed, err := w.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(listed))
	}
	if listed[0].Outcome != "success" || listed[0].Client != "client-2" {
		t.Fatalf("expected newest entry first, got %+v", listed[0])
	}

	purged, err := w.Purge(context.Background(), now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("purge attempts: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected purged=2, got %d", purged)
	}

	remaining, err := w.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list remaining attempts: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Outcome != "success" {
		t.Fatalf("expected 1 success entry, got %+v", remaining)
	}
}

func TestSQLiteWriter_ZeroTimeStamped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("new sqlite writer: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	if err := w.Write(context.Background(), Entry{Model: "m", Client: "client-1", Slot: "primary", Outcome: "failure"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	listed, err := w.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].CreatedAt.IsZero() {
		t.Fatalf("expected stamped CreatedAt, got %+v", listed)
	}
}

func TestPostgresWriterContract(t *testing.T) {
	dsn := os.Getenv("GENROTOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set GENROTOR_TEST_POSTGRES_DSN to run Postgres attempt journal integration tests")
	}

	w, err := NewPostgresWriter(dsn)
	if err != nil {
		t.Fatalf("new postgres writer: %v", err)
	}
	t.Cleanup(func() {
		_, _ = w.db.Exec("DELETE FROM attempt_log")
		_ = w.Close()
	})

	_, _ = w.db.Exec("DELETE FROM attempt_log")

	entry := Entry{
		TraceID:   "pg-trace",
		Model:     "gemini-2.0-flash",
		Client:    "client-1",
		Slot:      "primary",
		Outcome:   "success",
		CreatedAt: time.Now().UTC(),
	}
	if err := w.Write(context.Background(), entry); err != nil {
		t.Fatalf("write postgres entry: %v", err)
	}

	listed, err := w.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list postgres entries: %v", err)
	}
	if len(listed) != 1 || listed[0].TraceID != "pg-trace" {
		t.Fatalf("expected 1 entry, got %+v", listed)
	}
}
