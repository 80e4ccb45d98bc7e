// Package cmd assembles the yardwatch command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yardwatch/yardwatch/cmd/migrate"
	"github.com/yardwatch/yardwatch/cmd/stop"
	"github.com/yardwatch/yardwatch/cmd/worker"
	"github.com/yardwatch/yardwatch/internal/buildinfo"
	"github.com/yardwatch/yardwatch/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "yardwatch",
		Short:         "Camera-based safety incident detection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		worker.Command(settings),
		migrate.Command(settings),
		stop.Command(settings),
		versionCommand(),
	)
	return rootCmd
}

// setupFlags defines flags shared by every subcommand. Flags override the
// loaded configuration.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().StringVar(&settings.Database.Type, "db", viper.GetString("database.type"), "Database type (sqlite, mysql, postgres)")
	rootCmd.PersistentFlags().StringVar(&settings.Database.SQLite.Path, "sqlite-path", viper.GetString("database.sqlite.path"), "SQLite database file")
	rootCmd.PersistentFlags().StringVar(&settings.StopSignal.Backend, "stop-backend", viper.GetString("stopsignal.backend"), "Stop signal store (memory, nats)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(buildinfo.String())
		},
	}
}
