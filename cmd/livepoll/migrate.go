package main

import (
	"io/fs"
	"log"
	"os"

	"github.com/spf13/cobra"

	"livepoll-backend/internal/config"
	"livepoll-backend/internal/database"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := database.RunMigrations(pool, migrationsFS(cfg)); err != nil {
			return err
		}
		log.Println("✓ Database migrations applied")
		return nil
	},
}

// migrationsFS prefers MIGRATIONS_DIR over the embedded set.
func migrationsFS(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return database.Migrations()
}
