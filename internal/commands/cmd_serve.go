package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/magicbell-io/magicbell-go/internal/auth"
	"github.com/magicbell-io/magicbell-go/internal/config"
	"github.com/magicbell-io/magicbell-go/internal/logging"
	"github.com/magicbell-io/magicbell-go/internal/safety"
	"github.com/magicbell-io/magicbell-go/internal/store"
	"github.com/magicbell-io/magicbell-go/internal/tools"
)

const shutdownTimeout = 15 * time.Second

type ServeCmd struct {
	flags   *Flags
	app     *App
	port    int
	version string
}

func NewServeCmd(flags *Flags, app *App, version string) *ServeCmd {
	return &ServeCmd{flags: flags, app: app, version: version}
}

func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "serve",
		Usage:       "Serve the feed tools over MCP streamable HTTP",
		UsageText:   "magicbell serve [options]",
		Description: "Exposes feed_list, feed_counts and feed_action to MCP clients behind bearer token authentication.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "port",
				Usage:       "listen port (overrides server.port)",
				Sources:     cli.EnvVars("MAGICBELL_MCP_PORT"),
				Destination: &cmd.port,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.app.Config
	if cmd.port > 0 {
		cfg.Server.Port = cmd.port
	}

	tokenBefore := cfg.Server.AuthToken
	if token, err := config.EnsureAuthToken(cfg); err != nil {
		log.Warn().Err(err).Msg("could not generate auth token, running without authentication")
	} else if tokenBefore == "" {
		log.Info().Str("token", token).Msg("generated auth token (set MAGICBELL_MCP_AUTH_TOKEN to persist)")
	}

	var audit *safety.AuditLogger
	if cfg.Audit.Enabled {
		l, closeAudit, err := safety.OpenAuditLog(cfg.Audit.LogPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Audit.LogPath).Msg("audit logging disabled")
		} else {
			audit = l
			defer closeAudit()
		}
	}

	filter := safety.NewFilter(cfg.Safety.Actions.Allowlist, cfg.Safety.Actions.Denylist)
	confirm := safety.NewConfirmationTracker(store.DestructiveActions)

	mcpServer := server.NewMCPServer("magicbell-feed", cmd.version, server.WithToolCapabilities(false))
	names := tools.RegisterAll(mcpServer, store.FeedTools(cmd.app.Director, filter, confirm, audit), logging.Component("mcp"))

	handler := auth.NewAuthMiddleware(logging.Component("auth"), cfg.Server.AuthToken)(server.NewStreamableHTTPServer(mcpServer))
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Strs("tools", names).Msg("magicbell-feed listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
