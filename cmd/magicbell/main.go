// Package main is the entry point for the magicbell feed CLI and MCP server.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/magicbell-io/magicbell-go/internal/commands"
	"github.com/magicbell-io/magicbell-go/internal/logging"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func build() string {
	v, c := version, commit
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					c = s.Value
				}
			}
		}
	}
	if len(c) > 7 {
		c = c[:7]
	}
	return fmt.Sprintf("%s (%s)", v, c)
}

func main() {
	var (
		logCloser func()
		app       = &commands.App{}
		flags     = &commands.Flags{}
	)

	root := &cli.Command{
		Name:      "magicbell",
		Usage:     "Browse and act on a MagicBell notification feed",
		UsageText: "magicbell [global options] command [command options]",
		Version:   build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("MAGICBELL_CONFIG"),
				Value:       commands.DefaultConfigPath,
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic); overrides log.level",
				Sources:     cli.EnvVars("MAGICBELL_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to stderr); overrides log.file",
				Sources:     cli.EnvVars("MAGICBELL_LOG_FILE"),
				Destination: &flags.LogFile,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := commands.LoadConfig(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if flags.LogLevel != "" {
				cfg.Log.Level = flags.LogLevel
			}
			if flags.LogFile != "" {
				cfg.Log.File = flags.LogFile
			}

			logger, closer, err := logging.New(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			if err := cfg.Validate(); err != nil {
				return ctx, err
			}

			built, err := commands.NewApp(cfg)
			if err != nil {
				return ctx, err
			}
			// Commands already hold a pointer to app.
			*app = *built
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	root = commands.NewServeCmd(flags, app, version).Register(root)
	root = commands.NewFeedCmd(flags, app).Register(root)
	root = commands.NewCountsCmd(flags, app).Register(root)
	root = commands.NewShowCmd(flags, app).Register(root)
	root = commands.NewReadAllCmd(flags, app).Register(root)
	root = commands.NewSeenAllCmd(flags, app).Register(root)

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
