package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"evolva/internal/evo"
	"evolva/internal/logging"
)

const (
	DefaultGenerations    = 100
	DefaultCrossover      = 0.9
	DefaultMutation       = 0.01
	DefaultCities         = 20
	DefaultCacheSize      = 4096
	DefaultProblemExtent  = 100.0
	DefaultStoreKind      = "memory"
	DefaultTournamentSize = evo.DefaultTournamentSize
)

// Config is the on-disk run file.
type Config struct {
	Run       RunConfig       `yaml:"run"`
	Scaling   ScalingConfig   `yaml:"scaling"`
	Selection SelectionConfig `yaml:"selection"`
	Problem   ProblemConfig   `yaml:"problem"`
	Store     StoreConfig     `yaml:"store"`
	Log       logging.Config  `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type RunConfig struct {
	Generations       int     `yaml:"generations" validate:"gt=0"`
	PopulationSize    int     `yaml:"population_size" validate:"gt=0"`
	Crossover         float32 `yaml:"crossover" validate:"gte=0,lte=1"`
	Mutation          float32 `yaml:"mutation" validate:"gte=0,lte=1"`
	Minimize          bool    `yaml:"minimize"`
	Seed              int64   `yaml:"seed"`
	Debug             bool    `yaml:"debug"`
	Elitism           bool    `yaml:"elitism"`
	Convergence       float32 `yaml:"convergence" validate:"gte=0,lte=1"`
	ConvergenceWindow int     `yaml:"convergence_window" validate:"gte=0"`
}

type ScalingConfig struct {
	Scheme     string  `yaml:"scheme" validate:"scaling"`
	Multiplier float32 `yaml:"multiplier" validate:"omitempty,gt=1"`
}

type SelectionConfig struct {
	Scheme         string `yaml:"scheme" validate:"selection"`
	Basis          string `yaml:"basis" validate:"omitempty,oneof=raw scaled fitness"`
	TournamentSize int    `yaml:"tournament_size" validate:"gte=0"`
}

// ProblemConfig describes the travelling-salesman instance a run solves.
type ProblemConfig struct {
	Cities    int     `yaml:"cities" validate:"gte=3"`
	Seed      int64   `yaml:"seed"`
	Width     float64 `yaml:"width" validate:"gt=0"`
	Height    float64 `yaml:"height" validate:"gt=0"`
	CacheSize int     `yaml:"cache_size" validate:"gte=0"`
}

type StoreConfig struct {
	Kind string `yaml:"kind" validate:"oneof=memory sqlite"`
	Path string `yaml:"path" validate:"required_if=Kind sqlite"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("selection", func(fl validator.FieldLevel) bool {
		_, err := evo.ParseSelectionScheme(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("scaling", func(fl validator.FieldLevel) bool {
		_, err := evo.ParseScalingScheme(fl.Field().String())
		return err == nil
	})
}

// Default returns a complete configuration: a minimising travelling-salesman
// run with roulette selection on linearly scaled fitness.
func Default() Config {
	return Config{
		Run: RunConfig{
			Generations:    DefaultGenerations,
			PopulationSize: evo.DefaultPopulationSize,
			Crossover:      DefaultCrossover,
			Mutation:       DefaultMutation,
			Minimize:       true,
			Seed:           1,
		},
		Scaling: ScalingConfig{
			Scheme:     string(evo.ScalingLinear),
			Multiplier: evo.DefaultLinearMultiplier,
		},
		Selection: SelectionConfig{
			Scheme:         string(evo.SelectionRoulette),
			Basis:          "scaled",
			TournamentSize: DefaultTournamentSize,
		},
		Problem: ProblemConfig{
			Cities:    DefaultCities,
			Seed:      1,
			Width:     DefaultProblemExtent,
			Height:    DefaultProblemExtent,
			CacheSize: DefaultCacheSize,
		},
		Store: StoreConfig{Kind: DefaultStoreKind},
		Log:   logging.Config{Level: "info", Format: "json"},
	}
}

// Load reads and parses a YAML run file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys are
// rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// EngineConfig converts the run section into a validated evo.Config.
func (c Config) EngineConfig() (evo.Config, error) {
	cfg := evo.Config{
		MaxGenerations:        c.Run.Generations,
		CrossoverProbability:  c.Run.Crossover,
		MutationProbability:   c.Run.Mutation,
		Minimize:              c.Run.Minimize,
		Seed:                  c.Run.Seed,
		Elitism:               c.Run.Elitism,
		ConvergencePercentage: c.Run.Convergence,
		ConvergenceWindow:     c.Run.ConvergenceWindow,
	}
	if c.Run.Debug {
		cfg.Flags |= evo.FlagDebug
	}
	if err := cfg.Validate(); err != nil {
		return evo.Config{}, err
	}
	return cfg, nil
}
