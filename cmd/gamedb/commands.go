package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gamedb/internal/catalog"
	"github.com/mmcdole/gamedb/internal/config"
	"github.com/mmcdole/gamedb/internal/session"
	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var page int
	var refresh bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for games, printing cached results first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), page, refresh)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "result page to fetch")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "skip the cache and query RAWG directly")
	return cmd
}

func runSearch(ctx context.Context, w io.Writer, query string, page int, refresh bool) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	printed := false
	for snap := range a.svc.SearchGames(ctx, query, page, refresh) {
		if snap.Err != nil {
			a.logger.Error("search failed", "error", snap.Err, "query", query, "page", page)
			return errors.New(session.Message(snap.Err))
		}
		if printed {
			fmt.Fprintln(w)
		}
		printSnapshot(w, snap, page)
		printed = true
	}
	return ctx.Err()
}

func printSnapshot(w io.Writer, snap catalog.Snapshot, page int) {
	origin := "network"
	if snap.FromCache {
		origin = "cache"
	}
	fmt.Fprintf(w, "Page %d · %d games (%s)\n", page, len(snap.Games), origin)
	if len(snap.Games) > 0 {
		fmt.Fprintln(w, renderGameTable(snap.Games))
	}
}

func newDetailsCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "details <id>",
		Short: "Show one game's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid game id %q", args[0])
			}

			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			select {
			case snap := <-a.svc.GetGameDetails(cmd.Context(), id, refresh):
				if snap.Err != nil {
					a.logger.Error("details failed", "error", snap.Err, "id", id)
					return errors.New(session.Message(snap.Err))
				}
				printGameDetails(cmd.OutOrStdout(), snap.Game)
				return nil
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass any cached copy")
	return cmd
}

func newCachedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cached <query>",
		Short: "List every cached game for a query, across all pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			games := a.svc.CachedGames(cmd.Context(), query)
			w := cmd.OutOrStdout()
			if len(games) == 0 {
				fmt.Fprintf(w, "Nothing cached for %q\n", query)
				return nil
			}
			fmt.Fprintf(w, "%d cached games for %q\n", len(games), query)
			fmt.Fprintln(w, renderGameTable(games))
			return nil
		},
	}
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local result cache",
	}

	clearCmd := &cobra.Command{
		Use:   "clear <query>",
		Short: "Remove every cached game for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			n, err := a.svc.ClearCache(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached games for %q\n", n, query)
			return nil
		},
	}

	var maxAge time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached games older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			age := a.cfg.Cache.MaxAge
			if cmd.Flags().Changed("max-age") {
				age = maxAge
			}
			if age < 0 {
				return fmt.Errorf("--max-age must not be negative")
			}
			n, err := a.svc.ClearOldCaches(cmd.Context(), age)
			if err != nil {
				return fmt.Errorf("failed to prune cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached games older than %s\n", n, age)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "maximum age of entries to keep")

	cmd.AddCommand(clearCmd, pruneCmd)
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage gamedb configuration",
	}

	setKeyCmd := &cobra.Command{
		Use:   "set-key [key]",
		Short: "Store the RAWG API key in config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				var err error
				if key, err = readAPIKey(os.Stdin, "RAWG API key: "); err != nil {
					return err
				}
			}
			if err := config.SaveAPIKey(key); err != nil {
				return fmt.Errorf("failed to save API key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key saved to %s\n", config.DefaultPaths().ConfigDir)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg)
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\n! %v\n", err)
			}
			return nil
		},
	}

	cmd.AddCommand(setKeyCmd, showCmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gamedb %s\n", Version)
		},
	}
}
