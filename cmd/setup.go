package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, then initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
		}
	}

	if err := config.Validate(); err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)

	r.writePlain("✓ Database ready at %s\n", config.Database.Path)
	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientID == "your_spotify_client_id" {
		r.writePlainln("Next steps:")
		r.writePlain("1. Set credentials.spotify.client_id and client_secret in %s (or TRACKSIG_CLIENT_ID / TRACKSIG_CLIENT_SECRET)\n", configPath)
		r.writePlain("2. Run 'tracksig ingest artist --id <artist>' to store tracks\n")
	}
	return nil
}

// DBStatus lists applied migrations. It opens the database without migrating so the listing reflects disk.
func (r *Runner) DBStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		r.writePlain("No migrations applied. Run 'tracksig setup'.\n")
		return nil
	}
	for _, m := range applied {
		r.writePlain("%4d  applied %s\n", m.Version, m.AppliedAt)
	}
	return nil
}

// DBRollback reverts the most recently applied migration.
func (r *Runner) DBRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.logger.Info("rolled back latest migration", "path", r.config.Database.Path)
	r.writePlain("✓ Rolled back the latest migration\n")
	return nil
}
