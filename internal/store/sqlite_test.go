package store

import (
	"context"
	"testing"
	"time"

	"intraday-sim/internal/config"
	"intraday-sim/internal/sim"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// 内存库必须限制为单连接，否则每个连接各自一份空库
	s, err := NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return s
}

func TestSaveAndLoadHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	submission := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	delivery := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	executed := 49.5
	records := []sim.Record{
		{
			OrderID:        "o1",
			StrategyID:     "alpha",
			Side:           "buy",
			Price:          50,
			Quantity:       5,
			ContractTime:   delivery,
			SubmissionTime: submission,
			Status:         "active",
			EventType:      "submitted",
		},
		{
			OrderID:        "o1",
			StrategyID:     "alpha",
			Side:           "buy",
			Price:          50,
			Quantity:       5,
			ContractTime:   delivery,
			SubmissionTime: submission,
			ExecutionTime:  submission.Add(30 * time.Minute),
			Status:         "filled",
			EventType:      "filled",
			UpdateCount:    1,
			ExecutionPrice: &executed,
		},
	}

	if err := s.SaveHistory(ctx, "run-1", records); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, err := s.LoadHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(loaded))
	}

	first := loaded[0]
	if first.OrderID != "o1" || first.EventType != "submitted" {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if !first.ExecutionTime.IsZero() {
		t.Fatalf("submitted record should have no execution time, got %v", first.ExecutionTime)
	}
	if first.ExecutionPrice != nil {
		t.Fatalf("submitted record should have no execution price, got %v", *first.ExecutionPrice)
	}

	second := loaded[1]
	if second.Status != "filled" || second.UpdateCount != 1 {
		t.Fatalf("unexpected second record: %+v", second)
	}
	if !second.ExecutionTime.Equal(submission.Add(30 * time.Minute)) {
		t.Fatalf("execution time mismatch: %v", second.ExecutionTime)
	}
	if second.ExecutionPrice == nil || *second.ExecutionPrice != executed {
		t.Fatalf("execution price mismatch: %v", second.ExecutionPrice)
	}
	if !second.ContractTime.Equal(delivery) {
		t.Fatalf("contract time mismatch: %v", second.ContractTime)
	}
}

func TestLoadHistoryIsolatesRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := sim.Record{
		OrderID:      "o1",
		StrategyID:   "alpha",
		Side:         "buy",
		Price:        50,
		Quantity:     5,
		ContractTime: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
		Status:       "active",
		EventType:    "submitted",
	}
	if err := s.SaveHistory(ctx, "run-a", []sim.Record{record}); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, err := s.LoadHistory(ctx, "run-b")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no records for other run, got %d", len(loaded))
	}
}

func TestSaveHistoryPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var records []sim.Record
	for _, id := range []string{"c", "a", "b"} {
		records = append(records, sim.Record{
			OrderID:      id,
			StrategyID:   "alpha",
			Side:         "sell",
			Price:        40,
			Quantity:     1,
			ContractTime: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
			Status:       "active",
			EventType:    "submitted",
		})
	}
	if err := s.SaveHistory(ctx, "run-1", records); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, err := s.LoadHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	for i, want := range []string{"c", "a", "b"} {
		if loaded[i].OrderID != want {
			t.Fatalf("record %d: expected %q, got %q", i, want, loaded[i].OrderID)
		}
	}
}
