package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/magicbell-io/magicbell-go/internal/store"
)

type FeedCmd struct {
	flags *Flags
	app   *App
	pages int
}

func NewFeedCmd(flags *Flags, app *App) *FeedCmd {
	return &FeedCmd{flags: flags, app: app}
}

func (cmd *FeedCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "feed",
		Usage:       "Print the notification feed",
		UsageText:   "magicbell feed [options]",
		Description: "Loads the configured feed from the first page and prints notifications with their counters as JSON.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "pages",
				Usage:       "number of pages to load",
				Value:       1,
				Destination: &cmd.pages,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *FeedCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.pages < 1 {
		return fmt.Errorf("--pages must be at least 1, got %d", cmd.pages)
	}

	s := cmd.app.DefaultStore()
	if _, err := s.Refresh(ctx); err != nil {
		return err
	}
	for i := 1; i < cmd.pages && s.HasNextPage(); i++ {
		if _, err := s.Fetch(ctx); err != nil {
			return err
		}
	}

	st := s.Snapshot()
	log.Debug().Int("notifications", len(st.Notifications)).Bool("has_next_page", st.HasNextPage).Msg("feed loaded")
	return writeJSON(c.Root().Writer, st)
}

type CountsCmd struct {
	flags *Flags
	app   *App
}

func NewCountsCmd(flags *Flags, app *App) *CountsCmd {
	return &CountsCmd{flags: flags, app: app}
}

func (cmd *CountsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "counts",
		Usage:     "Print total, unread and unseen counters",
		UsageText: "magicbell counts",
		Action:    cmd.run,
	})
	return app
}

func (cmd *CountsCmd) run(ctx context.Context, c *cli.Command) error {
	s := cmd.app.DefaultStore()
	if _, err := s.Refresh(ctx); err != nil {
		return err
	}
	return writeJSON(c.Root().Writer, s.Counters())
}

// BulkCmd marks every notification read or seen.
type BulkCmd struct {
	flags *Flags
	app   *App
	name  string
	usage string
	apply func(ctx context.Context, s *store.NotificationStore) error
}

func NewReadAllCmd(flags *Flags, app *App) *BulkCmd {
	return &BulkCmd{
		flags: flags,
		app:   app,
		name:  "read-all",
		usage: "Mark every notification as read",
		apply: (*store.NotificationStore).MarkAllNotificationAsRead,
	}
}

func NewSeenAllCmd(flags *Flags, app *App) *BulkCmd {
	return &BulkCmd{
		flags: flags,
		app:   app,
		name:  "seen-all",
		usage: "Mark every notification as seen",
		apply: (*store.NotificationStore).MarkAllNotificationAsSeen,
	}
}

func (cmd *BulkCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      cmd.name,
		Usage:     cmd.usage,
		UsageText: "magicbell " + cmd.name,
		Action:    cmd.run,
	})
	return app
}

func (cmd *BulkCmd) run(ctx context.Context, c *cli.Command) error {
	s := cmd.app.DefaultStore()
	if _, err := s.Refresh(ctx); err != nil {
		return err
	}
	if err := cmd.apply(ctx, s); err != nil {
		return err
	}
	log.Info().Str("command", cmd.name).Msg("bulk action applied")
	return writeJSON(c.Root().Writer, s.Counters())
}

// ShowCmd prints a single notification fetched by id.
type ShowCmd struct {
	flags *Flags
	app   *App
}

func NewShowCmd(flags *Flags, app *App) *ShowCmd {
	return &ShowCmd{flags: flags, app: app}
}

func (cmd *ShowCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "show",
		Usage:     "Print one notification by id",
		UsageText: "magicbell show <id>",
		Action:    cmd.run,
	})
	return app
}

func (cmd *ShowCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("show takes exactly one notification id")
	}
	n, err := cmd.app.Manager.Get(ctx, c.Args().First(), cmd.app.Config.User)
	if err != nil {
		return err
	}
	return writeJSON(c.Root().Writer, n)
}
