package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/gamedb/internal/catalog"
	"github.com/mmcdole/gamedb/internal/config"
	"github.com/mmcdole/gamedb/internal/domain"
	"github.com/mmcdole/gamedb/internal/logging"
	"github.com/mmcdole/gamedb/internal/rawg"
	"github.com/mmcdole/gamedb/internal/store"
	"github.com/mmcdole/gamedb/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gamedb [query]",
		Short:         "Search the RAWG video game database",
		Long:          "gamedb searches RAWG and keeps results in a local cache, so repeat searches show instantly and still work offline.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), strings.Join(args, " "))
		},
	}

	root.AddCommand(
		newSearchCmd(),
		newDetailsCmd(),
		newCachedCmd(),
		newCacheCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// app holds the wired services shared by every command
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	cache     domain.CacheStore
	svc       *catalog.Service
	logCloser io.Closer
}

// openApp loads configuration and wires the store, client and service.
// requireKey is false for commands that only touch the local cache.
func openApp(ctx context.Context, requireKey bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = logging.Discard()
		logCloser = nil
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		if requireKey || !errors.Is(err, config.ErrMissingAPIKey) {
			closeQuietly(logCloser)
			return nil, err
		}
	}

	cache, err := store.Open(cfg.Cache.Backend, cfg.Cache.Path, store.WithLogger(logger))
	if err != nil {
		closeQuietly(logCloser)
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	client := rawg.NewClient(cfg.RAWG.BaseURL, cfg.RAWG.APIKey, logger,
		rawg.WithTimeout(cfg.RAWG.Timeout),
		rawg.WithRateLimit(cfg.RAWG.RequestsPerSecond, cfg.RAWG.Burst),
	)
	svc := catalog.NewService(client, cache, logger, catalog.WithPageSize(cfg.RAWG.PageSize))

	a := &app{cfg: cfg, logger: logger, cache: cache, svc: svc, logCloser: logCloser}
	a.pruneOnStartup(ctx)
	return a, nil
}

// pruneOnStartup drops cache rows older than cache.max_age
func (a *app) pruneOnStartup(ctx context.Context) {
	if a.cfg.Cache.MaxAge <= 0 {
		return
	}
	n, err := a.svc.ClearOldCaches(ctx, a.cfg.Cache.MaxAge)
	if err != nil {
		a.logger.Warn("startup cache prune failed", "error", err)
		return
	}
	if n > 0 {
		a.logger.Info("pruned stale cache entries", "removed", n, "max_age", a.cfg.Cache.MaxAge)
	}
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("failed to close cache", "error", err)
	}
	closeQuietly(a.logCloser)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func runTUI(ctx context.Context, query string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		if query == "" {
			return errors.New("not a terminal; use 'gamedb search <query>'")
		}
		return runSearch(ctx, os.Stdout, query, 1, false)
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}

	if !a.cfg.IsConfigured() {
		a.Close()
		if err := runSetupFlow(); err != nil {
			return err
		}
		if a, err = openApp(ctx, true); err != nil {
			return err
		}
	}
	defer a.Close()

	a.logger.Info("starting gamedb", "version", Version, "backend", a.cfg.Cache.Backend)

	model := tui.NewModel(a.svc, a.svc, a.logger, query)
	defer model.Close()

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		a.logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	a.logger.Info("shutting down")
	return nil
}

// runSetupFlow asks for an API key on first run
func runSetupFlow() error {
	fmt.Println()
	fmt.Println("Welcome to gamedb!")
	fmt.Println()
	fmt.Println("A free RAWG API key is required: https://rawg.io/apidocs")
	fmt.Println()

	key, err := readAPIKey(os.Stdin, "Enter your RAWG API key: ")
	if err != nil {
		return err
	}
	if err := config.SaveAPIKey(key); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	fmt.Println("✓ API key saved")
	return nil
}

// readAPIKey reads a key without echo from a terminal, or a line otherwise
func readAPIKey(in *os.File, prompt string) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Print(prompt)
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
