package main

import (
	"log/slog"
	"os"

	"github.com/Dosada05/pickleball-eventday/config"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	app := &cli.App{
		Name:  "eventday",
		Usage: "event-day orchestration: live draws, courts, scores and viewer broadcasts",
		Before: func(c *cli.Context) error {
			config.LoadDotEnv()
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(logger),
			migrateCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
