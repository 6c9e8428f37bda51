package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"evolva/internal/model"
)

const (
	RunFile         = "run.json"
	GenerationsFile = "generations.json"
	SeriesFile      = "generation_series.csv"
)

// ExportRun writes a run summary, its generation history and a CSV series
// into outDir/<run id> and returns that directory.
func ExportRun(outDir string, run model.RunRecord, history []model.GenerationRecord) (string, error) {
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}
	dst := filepath.Join(outDir, run.ID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dst, RunFile), run); err != nil {
		return "", err
	}
	if history == nil {
		history = []model.GenerationRecord{}
	}
	if err := writeJSON(filepath.Join(dst, GenerationsFile), history); err != nil {
		return "", err
	}
	if err := WriteGenerationSeries(dst, history); err != nil {
		return "", err
	}
	return dst, nil
}

// ReadRun loads a run summary previously written by ExportRun.
func ReadRun(dir string) (model.RunRecord, error) {
	var run model.RunRecord
	data, err := os.ReadFile(filepath.Join(dir, RunFile))
	if err != nil {
		return model.RunRecord{}, err
	}
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func WriteGenerationSeries(runDir string, history []model.GenerationRecord) error {
	path := filepath.Join(runDir, SeriesFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_raw", "mean_raw", "std_dev_raw", "best_fitness"}); err != nil {
		return err
	}
	for _, gen := range history {
		if err := writer.Write([]string{
			strconv.Itoa(gen.Generation),
			strconv.FormatFloat(gen.BestRaw, 'f', -1, 64),
			strconv.FormatFloat(gen.MeanRaw, 'f', -1, 64),
			strconv.FormatFloat(gen.StdDevRaw, 'f', -1, 64),
			strconv.FormatFloat(gen.BestFitness, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadGenerationSeries returns the best raw score per generation.
func ReadGenerationSeries(runDir string) ([]float64, error) {
	file, err := os.Open(filepath.Join(runDir, SeriesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty series file")
	}
	out := make([]float64, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("series row %d: expected at least 2 columns", i+1)
		}
		best, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("series row %d: %w", i+1, err)
		}
		out = append(out, best)
	}
	return out, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
