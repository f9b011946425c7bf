package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/pickleball-eventday/db"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
)

var databaseURLFlag = &cli.StringFlag{
	Name:    "database-url",
	Usage:   "postgres connection string",
	EnvVars: []string{"DATABASE_URL"},
}

func migrateCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Flags: []cli.Flag{databaseURLFlag},
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: func(c *cli.Context) error {
					return withDatabase(c, func(conn *sqlx.DB) error {
						if err := db.MigrateUp(conn.DB); err != nil {
							return err
						}
						logger.Info("migrations applied")
						return nil
					})
				},
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"}},
				Action: func(c *cli.Context) error {
					steps := c.Int("steps")
					if steps <= 0 {
						return fmt.Errorf("steps must be positive, got %d", steps)
					}
					return withDatabase(c, func(conn *sqlx.DB) error {
						if err := db.MigrateDown(conn.DB, steps); err != nil {
							return err
						}
						logger.Info("migrations rolled back", slog.Int("steps", steps))
						return nil
					})
				},
			},
			{
				Name:  "version",
				Usage: "print the current schema version",
				Action: func(c *cli.Context) error {
					return withDatabase(c, func(conn *sqlx.DB) error {
						version, dirty, err := db.MigrationVersion(conn.DB)
						if err != nil {
							return err
						}
						logger.Info("schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
						return nil
					})
				},
			},
		},
	}
}

func withDatabase(c *cli.Context, fn func(conn *sqlx.DB) error) error {
	url := c.String("database-url")
	if url == "" {
		return errors.New("DATABASE_URL is not set")
	}
	conn, err := db.Connect(url, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}
