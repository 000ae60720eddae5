// Package engine orchestrates the staging pipeline.
// It owns the warehouse connection, the dataset registry, and the run
// history store, and sequences load, curate, and metrics steps.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/careworks-labs/nhstage/internal/adapter"
	"github.com/careworks-labs/nhstage/internal/registry"
	"github.com/careworks-labs/nhstage/internal/state"
)

// Engine coordinates pipeline steps over a shared warehouse connection.
type Engine struct {
	// Database adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	logger *slog.Logger

	store       state.Store
	registry    *registry.Registry
	dataDir     string
	outputDir   string
	environment string
}

// Config holds engine configuration.
type Config struct {
	// DatasetsFile is the path to the dataset registry document.
	DatasetsFile string
	// DataDir is the directory scanned for source CSV files.
	DataDir string
	// DatabasePath is the path to the DuckDB file (empty for in-memory).
	DatabasePath string
	// StatePath is the path to the SQLite run history database.
	StatePath string
	// OutputDir is where exports such as metrics_summary.csv land.
	OutputDir string
	// Environment is the current environment (dev, staging, prod).
	Environment string
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates an engine with a lazy database connection. The warehouse
// is only connected when a pipeline step needs it.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine",
		"datasets_file", cfg.DatasetsFile, "environment", cfg.Environment)

	reg, err := registry.Load(cfg.DatasetsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset registry: %w", err)
	}

	store := state.NewSQLiteStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}

	return &Engine{
		dbConfig:    adapter.Config{Type: "duckdb", Path: cfg.DatabasePath},
		logger:      logger,
		store:       store,
		registry:    reg,
		dataDir:     cfg.DataDir,
		outputDir:   cfg.OutputDir,
		environment: env,
	}, nil
}

// ensureDBConnected lazily connects to the warehouse.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to database", "adapter_type", e.dbConfig.Type, "path", e.dbConfig.Path)

	db, err := adapter.New(e.dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database adapter: %w", err)
	}
	if err := db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	e.db = db
	e.dbConnected = true
	return nil
}

// Close releases the warehouse connection and the state store.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// Registry returns the loaded dataset registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// StateStore returns the run history store.
func (e *Engine) StateStore() state.Store {
	return e.store
}
