package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "gotoken",
		Usage:   "JWT access/refresh token service",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"GOTOKEN_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before configuration",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			return loadDotenv(c.String("env-file"))
		},
		Commands: []*cli.Command{
			serveCommand(),
			keygenCommand(),
		},
	}
}

// loadDotenv loads path if it exists. Variables already set win.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
