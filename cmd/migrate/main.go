package main

import (
	"errors"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"finance-tracker/internal/db"
)

type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Close() error
}

type openMigrator func(databaseURL string) (migrator, error)

func defaultOpen(databaseURL string) (migrator, error) {
	m, err := db.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}
	if err := newRootCmd(defaultOpen).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open openMigrator) *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the users schema",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")

	withMigrator := func(fn func(cmd *cobra.Command, m migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			url := databaseURL
			if url == "" {
				url = os.Getenv("DATABASE_URL")
			}
			if url == "" {
				return errors.New("DATABASE_URL environment variable or --database-url is required")
			}
			m, err := open(url)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(cmd, m)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Migrations reverted")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			}),
		},
	)
	return cmd
}
