package main

import (
	"github.com/spf13/cobra"

	"fellowship/internal/adapters/storage"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			log.Infow("storage_event", "event", "migrated")
			return storage.Close(db)
		},
	}
}
