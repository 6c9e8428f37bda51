package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"evolva/internal/config"
	"evolva/internal/model"
	"evolva/internal/stats"
	"evolva/pkg/evolva"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestRunCommandJSON(t *testing.T) {
	out, err := runCLI(t,
		"run",
		"--store", "memory",
		"--gens", "5",
		"--pop", "12",
		"--cities", "8",
		"--seed", "7",
		"--elitism",
		"--json",
	)
	if err != nil {
		t.Fatalf("run command: %v", err)
	}

	var summary evolva.RunSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode run summary: %v\n%s", err, out)
	}
	if summary.Status != "completed" {
		t.Fatalf("expected completed status, got %q", summary.Status)
	}
	if summary.Generations != 5 {
		t.Fatalf("expected 5 generations, got %d", summary.Generations)
	}
	if len(summary.BestTour) != 8 {
		t.Fatalf("expected an 8-city tour, got %v", summary.BestTour)
	}
	if len(summary.BestByGeneration) != 6 {
		t.Fatalf("expected 6 history points, got %d", len(summary.BestByGeneration))
	}
	last := summary.BestByGeneration[len(summary.BestByGeneration)-1]
	if last > summary.BestByGeneration[0] {
		t.Fatalf("elitist run regressed: first=%f last=%f", summary.BestByGeneration[0], last)
	}
}

func TestRunCommandTextOutput(t *testing.T) {
	out, err := runCLI(t, "run", "--store", "memory", "--gens", "2", "--pop", "6", "--cities", "5", "--selection", "tournament", "--basis", "raw")
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	for _, want := range []string{"run completed", "selection=tournament", "generation=2", "final_best_length="} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunCommandRejectsInvalidOverrides(t *testing.T) {
	cases := [][]string{
		{"run", "--store", "memory", "--crossover", "1.5"},
		{"run", "--store", "memory", "--selection", "boltzmann"},
		{"run", "--store", "memory", "--cities", "2"},
		{"run", "--store", "memory", "--multiplier", "0.5"},
	}
	for _, args := range cases {
		if _, err := runCLI(t, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestRunCommandUsesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	body := []byte("run:\n  generations: 3\n  population_size: 8\nproblem:\n  cities: 6\nselection:\n  scheme: uniform\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, "run", "--store", "memory", "--config", path, "--gens", "4", "--json")
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	var summary evolva.RunSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode run summary: %v", err)
	}
	if summary.Generations != 4 {
		t.Fatalf("expected flag to override file generations, got %d", summary.Generations)
	}
	if len(summary.BestTour) != 6 {
		t.Fatalf("expected file city count, got tour %v", summary.BestTour)
	}
}

func TestBatchCommand(t *testing.T) {
	out, err := runCLI(t, "batch", "--store", "memory", "--run-id", "sweep", "--gens", "2", "--pop", "6", "--cities", "5", "--seeds", "1,2,3", "--json")
	if err != nil {
		t.Fatalf("batch command: %v", err)
	}
	var summaries []evolva.RunSummary
	if err := json.Unmarshal([]byte(out), &summaries); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(summaries))
	}
	for i, summary := range summaries {
		if want := fmt.Sprintf("sweep-%d", i); summary.RunID != want {
			t.Fatalf("expected run id %s, got %s", want, summary.RunID)
		}
	}

	if _, err := runCLI(t, "batch", "--store", "memory"); err == nil {
		t.Fatal("expected error without seeds")
	}
}

func TestRunsAndDiagnosticsOnEmptyMemoryStore(t *testing.T) {
	out, err := runCLI(t, "runs", "--store", "memory")
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "run_id") {
		t.Fatalf("expected table header, got:\n%s", out)
	}

	_, err = runCLI(t, "diagnostics", "--store", "memory", "--latest")
	if !errors.Is(err, evolva.ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
	if _, err := runCLI(t, "diagnostics", "--store", "memory"); err == nil {
		t.Fatal("expected error without run id or --latest")
	}
}

func TestSchemesCommand(t *testing.T) {
	out, err := runCLI(t, "schemes")
	if err != nil {
		t.Fatalf("schemes command: %v", err)
	}
	for _, want := range []string{"rank", "roulette", "tournament", "uniform", "linear", "none"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigCommandPrintsParsableDefaults(t *testing.T) {
	out, err := runCLI(t, "config")
	if err != nil {
		t.Fatalf("config command: %v", err)
	}
	cfg, err := config.Parse([]byte(out))
	if err != nil {
		t.Fatalf("parse printed config: %v", err)
	}
	if cfg.Run.Generations != config.DefaultGenerations {
		t.Fatalf("expected default generations, got %d", cfg.Run.Generations)
	}
}

func TestUnknownStoreKind(t *testing.T) {
	if _, err := runCLI(t, "init", "--store", "bogus"); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestShowCommandReadsExport(t *testing.T) {
	run := model.RunRecord{ID: "shown", Status: model.RunStatusCompleted, Seed: 3, Stream: 2, Generations: 1, BestRaw: 9.5, BestTour: []int{0, 2, 1}}
	history := []model.GenerationRecord{{Generation: 0, BestRaw: 12}, {Generation: 1, BestRaw: 9.5}}
	dir, err := stats.ExportRun(t.TempDir(), run, history)
	if err != nil {
		t.Fatalf("export run: %v", err)
	}

	out, err := runCLI(t, "show", dir)
	if err != nil {
		t.Fatalf("show command: %v", err)
	}
	for _, want := range []string{"run_id=shown", "stream=2", "generation=0 best_length=12.000000", "generation=1 best_length=9.500000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, "show", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing export")
	}
}
