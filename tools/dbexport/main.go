// Package main copies a yardwatch SQLite database into MySQL, keeping
// primary keys, so a single-node install can move to the shared database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbexport",
	Short: "Copy yardwatch data from SQLite to MySQL",
	Long: `Copies every yardwatch table from a SQLite database into MySQL.

Tables are copied parents first with their original IDs. Rows that already
exist in the target are skipped, so an interrupted export can be rerun.`,
	RunE:         runExport,
	SilenceUsage: true,
}

var cfg Config

func init() {
	rootCmd.Flags().StringVar(&cfg.SQLitePath, "sqlite-path", "", "Path to source SQLite database file")

	rootCmd.Flags().StringVar(&cfg.MySQLDSN, "mysql-dsn", "", "MySQL connection string (user:pass@tcp(host:3306)/dbname)")
	rootCmd.Flags().StringVar(&cfg.MySQLHost, "mysql-host", "localhost", "MySQL host (alternative to DSN)")
	rootCmd.Flags().IntVar(&cfg.MySQLPort, "mysql-port", 3306, "MySQL port")
	rootCmd.Flags().StringVar(&cfg.MySQLUser, "mysql-user", "yardwatch", "MySQL username")
	rootCmd.Flags().StringVar(&cfg.MySQLPass, "mysql-pass", "", "MySQL password")
	rootCmd.Flags().StringVar(&cfg.MySQLDatabase, "mysql-database", "yardwatch", "MySQL database name")

	rootCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 500, "Rows per batch")
	rootCmd.Flags().BoolVar(&cfg.Clean, "clean", false, "Delete target rows before copying")
	rootCmd.Flags().BoolVar(&cfg.SkipVerify, "skip-verify", false, "Skip row count verification")
	rootCmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "Log SQL statements")
	rootCmd.Flags().StringVar(&cfg.ConfigPath, "config", "", "Path to config.yaml (for connection fallback)")
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

func runExport(cmd *cobra.Command, _ []string) error {
	if v, _ := cmd.Flags().GetBool("version"); v {
		fmt.Printf("dbexport version %s\n", version)
		return nil
	}

	if err := cfg.Load(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	fmt.Printf("Source: %s\n", cfg.SQLitePath)
	fmt.Printf("Target: %s\n", cfg.SanitizedMySQLDSN())

	migrator, err := NewMigrator(&cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	defer migrator.Close()

	stats, err := migrator.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	stats.Print(os.Stdout)

	if !cfg.SkipVerify {
		if err := Verify(cmd.Context(), migrator.sourceDB, migrator.targetDB, os.Stdout); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Println("Verification passed")
	}
	return nil
}
