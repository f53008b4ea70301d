package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/mobi/internal/server"
	"github.com/matthewbaird/mobi/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the listing, snapshot and activity tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Driver == storage.DriverMemory {
			return eris.New("migrate: the memory store has no schema")
		}
		drv, err := storage.Open(cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer drv.Close() //nolint:errcheck

		if err := server.Migrate(cmd.Context(), drv); err != nil {
			return err
		}
		zap.L().Info("database migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}
