package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vivenzalife/vivenza/internal/assets"
	"github.com/vivenzalife/vivenza/internal/db"
	"github.com/vivenzalife/vivenza/internal/stories"
	"github.com/vivenzalife/vivenza/pkg/config"
)

type reapStoriesOptions struct {
	DatabasePath string
	Retention    time.Duration
}

func parseReapStoriesArgs(cfg *config.Config, args []string) (reapStoriesOptions, error) {
	opts := reapStoriesOptions{DatabasePath: cfg.DatabasePath, Retention: cfg.StoryRetention}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--retention":
			i++
			if i >= len(args) {
				return opts, fmt.Errorf("--retention requires a duration")
			}
			d, err := time.ParseDuration(args[i])
			if err != nil || d < 0 {
				return opts, fmt.Errorf("invalid retention %q", args[i])
			}
			opts.Retention = d
		case "--database":
			i++
			if i >= len(args) || args[i] == "" {
				return opts, fmt.Errorf("--database requires a path")
			}
			opts.DatabasePath = args[i]
		default:
			return opts, fmt.Errorf("unknown reap-stories flag: %s", args[i])
		}
	}

	return opts, nil
}

// runReapStories deletes stories that expired longer than the retention ago,
// once, outside of the server's cron schedule.
func runReapStories(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, out io.Writer, args []string) error {
	opts, err := parseReapStoriesArgs(cfg, args)
	if err != nil {
		return err
	}

	database, err := db.New(opts.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	// Reaping never stores files.
	storySvc := stories.New(database.GetConn(), assets.NewMemory(), log)

	removed, err := storySvc.Reap(ctx, opts.Retention)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Removed %d stories expired more than %s ago.\n", removed, opts.Retention)
	return nil
}
