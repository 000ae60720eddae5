// Package commands implements the nhstage subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/careworks-labs/nhstage/internal/cli/config"
	"github.com/careworks-labs/nhstage/internal/engine"
)

// App carries the loaded configuration and logger to each command.
type App struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

type appKey struct{}

// Attach stores the app on the command's context. Called by the root
// command after configuration is loaded.
func Attach(cmd *cobra.Command, app *App) {
	cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
}

// appFrom retrieves the app from the command context, falling back to
// defaults so commands stay usable in tests without the root wiring.
func appFrom(cmd *cobra.Command) *App {
	if app, ok := cmd.Context().Value(appKey{}).(*App); ok {
		return app
	}
	return &App{
		Cfg: &config.Config{
			DataDir:      config.DefaultDataDir,
			DatabasePath: config.DefaultDatabase,
			DatasetsFile: config.DefaultDatasetsFile,
			StatePath:    config.DefaultStateFile,
			OutputDir:    config.DefaultOutputDir,
			Environment:  config.DefaultEnv,
		},
		Logger: slog.New(slog.DiscardHandler),
	}
}

// createEngine builds an engine from the current configuration.
func createEngine(app *App) (*engine.Engine, error) {
	if stateDir := filepath.Dir(app.Cfg.StatePath); stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	return engine.New(engine.Config{
		DatasetsFile: app.Cfg.DatasetsFile,
		DataDir:      app.Cfg.DataDir,
		DatabasePath: app.Cfg.DatabasePath,
		StatePath:    app.Cfg.StatePath,
		OutputDir:    app.Cfg.OutputDir,
		Environment:  app.Cfg.Environment,
		Logger:       app.Logger,
	})
}
