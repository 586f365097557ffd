package main

import (
	"github.com/kubev2v/build-orchestrator/internal/config"
	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/pkg/log"
	"github.com/kubev2v/build-orchestrator/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		undo := log.Setup(cfg.Service.LogLevel)
		defer undo()

		zap.S().Info("Starting migration...")
		defer zap.S().Info("Db migrated")

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder); err != nil {
			zap.S().Fatalw("running migrations", "error", err)
		}

		return nil
	},
}
