// Package commands implements the magicbell CLI subcommands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/rs/zerolog/log"

	"github.com/magicbell-io/magicbell-go/internal/config"
	"github.com/magicbell-io/magicbell-go/internal/graphql"
	"github.com/magicbell-io/magicbell-go/internal/logging"
	"github.com/magicbell-io/magicbell-go/internal/notifications"
	"github.com/magicbell-io/magicbell-go/internal/store"
)

// DefaultConfigPath is used when neither --config nor MAGICBELL_CONFIG is set.
const DefaultConfigPath = "/config/config.yaml"

// Flags are the global flags shared by every command.
type Flags struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
}

// App holds the collaborators built once per invocation in the root Before
// hook. Commands receive a pointer to it before it is populated.
type App struct {
	Config   *config.Config
	Manager  *notifications.HTTPNotificationManager
	Fetcher  *store.GraphQLPageFetcher
	Director *store.Director
}

// NewApp wires the remote client, page fetcher and store director for cfg.
func NewApp(cfg *config.Config) (*App, error) {
	client, err := graphql.NewHTTPClient(cfg.MagicBell)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	mgr := notifications.NewHTTPNotificationManager(client)
	fetcher := store.NewGraphQLPageFetcher(client)
	director := store.NewDirector(cfg.User, fetcher, mgr,
		store.WithPageSize(cfg.Store.PageSize),
		store.WithLogger(logging.Component("store")),
	)

	return &App{
		Config:   cfg,
		Manager:  mgr,
		Fetcher:  fetcher,
		Director: director,
	}, nil
}

// DefaultStore returns the store for the predicate configured in the store
// section.
func (a *App) DefaultStore() *store.NotificationStore {
	return a.Director.With(PredicateFromConfig(a.Config.Store))
}

// PredicateFromConfig converts the store section into a predicate.
func PredicateFromConfig(sc config.StoreConfig) store.Predicate {
	return store.Predicate{
		Read:       sc.Read,
		Seen:       sc.Seen,
		Archived:   sc.Archived,
		Categories: sc.Categories,
		Topics:     sc.Topics,
	}
}

// LoadConfig reads the config file at path and applies environment
// overrides. A missing file at the default path falls back to defaults.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	switch {
	case err == nil:
		log.Debug().Str("path", path).Msg("loaded config")
	case path == DefaultConfigPath && errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
		cfg = config.DefaultConfig()
	default:
		return nil, err
	}

	config.ApplyEnvOverrides(cfg)
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
