// Package migrate implements the migrate command.
package migrate

import (
	"github.com/spf13/cobra"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/logger"
)

// Command creates the migrate command. Open migrates the schema; --seed
// also inserts the default detection types and scenarios.
func Command(settings *conf.Settings) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.Global().Module("migrate")
			store, err := datastore.Open(&settings.Database, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if seed {
				if err := store.Seed(cmd.Context()); err != nil {
					return err
				}
			}
			log.Info("database ready", logger.String("type", settings.Database.Type), logger.Bool("seeded", seed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "Insert default detection types and scenarios")
	return cmd
}
