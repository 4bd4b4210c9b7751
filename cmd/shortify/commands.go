package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/do"
	"github.com/serroba/shortify/internal/health"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func shortenCommand() *cobra.Command {
	var alias string

	cmd := &cobra.Command{
		Use:   "shorten <url>",
		Short: "Shorten a URL and add it to the history",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Run = withApp(withSession, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		res, err := a.session.Submit(ctx, args[0], alias)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), res.Entry.ShortURL)

		a.awaitRefresh(ctx)

		return nil
	})

	cmd.Flags().StringVarP(&alias, "alias", "a", "", "Custom alias, 3 to 20 letters or digits")

	return cmd
}

func historyCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls"},
		Short:   "List recently shortened links, newest first",
		Args:    cobra.NoArgs,
	}

	cmd.Run = withApp(withSession, func(_ context.Context, a *app, cmd *cobra.Command, _ []string) error {
		entries := a.session.History()

		if asJSON {
			return writeJSON(cmd.OutOrStdout(), entries)
		}

		return printHistory(cmd.OutOrStdout(), entries)
	})

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the history as JSON")

	return cmd
}

func removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove one entry from the history",
		Args:    cobra.ExactArgs(1),
		Run: withApp(withSessionNoRefresh, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if !a.session.Remove(ctx, args[0]) {
				return fmt.Errorf("no history entry with id %q", args[0])
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Removed", args[0])

			return nil
		}),
	}
}

func clearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the local history",
		Long: "Clear the local history. Links the service still reports for this session\n" +
			"come back on the next sync.",
		Args: cobra.NoArgs,
		Run: withApp(withSessionNoRefresh, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			a.session.Clear(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")

			return nil
		}),
	}
}

func syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Merge the links the service holds for this session into the history",
		Args:  cobra.NoArgs,
		Run: withApp(withSessionNoRefresh, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			before := len(a.session.History())

			if err := a.session.Refresh(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "History has %d entries (%d before sync)\n", len(a.session.History()), before)

			return nil
		}),
	}
}

func watchCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the history in sync until interrupted",
		Long: "Keep the history in sync until interrupted. The history is refreshed on every\n" +
			"url.shortened event and on a fixed interval. With --events=redis, links\n" +
			"shortened by other shortify processes are picked up as well.",
		Args: cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return checkInterval(interval)
		},
	}

	cmd.Run = withApp(withSession, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s, press Ctrl+C to stop\n", a.options.BaseURL)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped with %d entries\n", len(a.session.History()))

				return nil
			case <-ticker.C:
				if err := a.session.Refresh(ctx); err != nil && ctx.Err() == nil {
					a.logger.Warn("periodic refresh failed", zap.Error(err))
				}
			}
		}
	})

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "How often to refresh without events")

	return cmd
}

var errInvalidInterval = errors.New("interval must be positive")

func checkInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("--interval %s: %w", d, errInvalidInterval)
	}

	return nil
}

var errDegraded = errors.New("one or more checks failed")

func statusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check connectivity to the service and the configured backends",
		Args:  cobra.NoArgs,
	}

	cmd.Run = withApp(noSession, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		handler, err := do.Invoke[*health.Handler](a.injector)
		if err != nil {
			return err
		}

		report := handler.Check(ctx)

		if asJSON {
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else if err := printReport(cmd.OutOrStdout(), report); err != nil {
			return err
		}

		if !report.Healthy() {
			return errDegraded
		}

		return nil
	})

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

