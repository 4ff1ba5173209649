package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eugenenazirov/variant-matrix/internal/report"
)

func sampleReport(variant string) report.Report {
	return report.Report{
		Sources: []string{"override"},
		Entries: []report.Entry{{
			Variant:   variant,
			Identity:  "verizonProduction",
			BuildType: "release",
			Enabled:   true,
			Fields:    []report.Field{{Name: "SERVER_URL", Value: "https://vz", Source: "override"}},
		}},
	}
}

func TestNewMemoryStorageIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	if _, err := store.GetReport(); !errors.Is(err, ErrNoReport) {
		t.Fatalf("expected ErrNoReport, got %v", err)
	}
}

func TestSetReportUpdatesState(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	first := store.SetReport(sampleReport("verizonProductionRelease"))
	second := store.SetReport(sampleReport("o2ProductionRelease"))
	if first.Generation != 1 || second.Generation != 2 {
		t.Fatalf("unexpected generations: %d, %d", first.Generation, second.Generation)
	}

	got, err := store.GetReport()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Report.Entries[0].Variant != "o2ProductionRelease" {
		t.Fatalf("expected latest report, got %q", got.Report.Entries[0].Variant)
	}
	if !got.GeneratedAt.Equal(fixed) {
		t.Fatalf("unexpected timestamp %s", got.GeneratedAt)
	}
}

func TestGetReportReturnsDefensiveCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	original := sampleReport("verizonProductionRelease")
	store.SetReport(original)

	// mutate both the input and a returned copy
	original.Entries[0].Fields[0].Value = "mutated"
	got, _ := store.GetReport()
	got.Report.Entries[0].Fields[0].Value = "mutated"

	again, err := store.GetReport()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Report.Entries[0].Fields[0].Value != "https://vz" {
		t.Fatalf("expected defensive copy, got %q", again.Report.Entries[0].Fields[0].Value)
	}
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	store := NewMemoryStorage()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			store.SetReport(sampleReport("verizonProductionRelease"))
		}()

		go func() {
			defer wg.Done()
			if _, err := store.GetReport(); err != nil && !errors.Is(err, ErrNoReport) {
				t.Errorf("GetReport failed: %v", err)
			}
		}()
	}

	wg.Wait()

	// final read should succeed
	snap, err := store.GetReport()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Generation != 32 {
		t.Fatalf("expected 32 generations, got %d", snap.Generation)
	}
}
