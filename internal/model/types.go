package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// RunRecord summarises one finished genetic algorithm run. Populations are
// never persisted; only the best solution found is kept.
type RunRecord struct {
	VersionedRecord
	ID          string    `json:"id"`
	Problem     string    `json:"problem"`
	Seed        int64     `json:"seed"`
	Stream      uint64    `json:"stream,omitempty"`
	Selection   string    `json:"selection"`
	Scaling     string    `json:"scaling"`
	Population  int       `json:"population"`
	Generations int       `json:"generations"`
	Minimize    bool      `json:"minimize"`
	Elitism     bool      `json:"elitism"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	BestRaw     float64   `json:"best_raw"`
	BestFitness float64   `json:"best_fitness"`
	BestTour    []int     `json:"best_tour,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (r RunRecord) Elapsed() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// GenerationRecord is the persisted form of one generation's statistics.
type GenerationRecord struct {
	Generation    int     `json:"generation"`
	BestRaw       float64 `json:"best_raw"`
	BestFitness   float64 `json:"best_fitness"`
	MinRaw        float64 `json:"min_raw"`
	MaxRaw        float64 `json:"max_raw"`
	MeanRaw       float64 `json:"mean_raw"`
	StdDevRaw     float64 `json:"std_dev_raw"`
	MeanFitness   float64 `json:"mean_fitness"`
	Crossovers    int     `json:"crossovers"`
	Mutations     int     `json:"mutations"`
	DurationNanos int64   `json:"duration_nanos"`
}
