package storage

import (
	"context"
	"testing"
	"time"

	"evolva/internal/model"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.RunRecord{
		sampleRun("b", base),
		sampleRun("a", base.Add(time.Minute)),
		sampleRun("c", base.Add(-time.Minute)),
	}
	for _, run := range runs {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	loaded, ok, err := store.GetRun(ctx, "b")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok || loaded.ID != "b" || len(loaded.BestTour) != 4 {
		t.Fatalf("unexpected run: ok=%v run=%+v", ok, loaded)
	}
	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%v err=%v", ok, err)
	}

	listed, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(listed) != 3 || listed[0].ID != "a" || listed[1].ID != "b" || listed[2].ID != "c" {
		t.Fatalf("unexpected run order: %+v", listed)
	}
	limited, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list limited runs: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "a" {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}

	updated := sampleRun("b", base)
	updated.Status = model.RunStatusCancelled
	if err := store.SaveRun(ctx, updated); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}
	loaded, _, err = store.GetRun(ctx, "b")
	if err != nil || loaded.Status != model.RunStatusCancelled {
		t.Fatalf("expected overwritten run, got %+v err=%v", loaded, err)
	}

	stats := []model.GenerationRecord{
		{Generation: 0, BestRaw: 10, MeanRaw: 12},
		{Generation: 1, BestRaw: 9, MeanRaw: 11, Crossovers: 4},
	}
	if err := store.SaveGenerationStats(ctx, "b", stats); err != nil {
		t.Fatalf("save stats: %v", err)
	}
	stats[0].BestRaw = -1
	loadedStats, ok, err := store.GetGenerationStats(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("get stats: ok=%v err=%v", ok, err)
	}
	if len(loadedStats) != 2 || loadedStats[0].BestRaw != 10 || loadedStats[1].Crossovers != 4 {
		t.Fatalf("unexpected stats: %+v", loadedStats)
	}
	if _, ok, err := store.GetGenerationStats(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing stats, ok=%v err=%v", ok, err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	listed, err = store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected no runs after reset, got %d", len(listed))
	}
	if _, ok, _ := store.GetGenerationStats(ctx, "b"); ok {
		t.Fatal("expected stats cleared by reset")
	}
}
