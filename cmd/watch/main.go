package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/cmd/watch/internal/render"
	"github.com/SunYerim/StockOfGalaxy/pkg/board"
	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/config"
	"github.com/SunYerim/StockOfGalaxy/pkg/feedsource"
)

const clearScreen = "\033[H\033[2J"

var (
	sourceFlag   string
	durationFlag time.Duration
	noClearFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "watch [codes...]",
	Short: "Watch live prices for catalog instruments",
	Long: `Mount a board over the catalog (or the given codes) and redraw it on
every price change. Rows appear in catalog order; unknown codes are ignored.`,
	RunE: runWatch,
}

func init() {
	rootCmd.Flags().StringVar(&sourceFlag, "source", "", "feed source: kis or redis (default from config)")
	rootCmd.Flags().DurationVar(&durationFlag, "for", 0, "stop after this long (0 = until interrupted)")
	rootCmd.Flags().BoolVar(&noClearFlag, "no-clear", false, "append frames instead of redrawing the screen")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if sourceFlag != "" {
		cfg.Feed.Source = sourceFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	// logs go to stderr so they don't tear the table
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if durationFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, durationFlag)
		defer cancel()
	}

	cat, err := catalog.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	rdb := feedsource.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	source, err := feedsource.New(ctx, cfg.Feed, rdb, logger)
	if err != nil {
		return err
	}

	var codes []string
	if len(args) > 0 {
		codes = args
	}
	b, err := board.New(cat, codes, source, logger)
	if err != nil {
		return err
	}
	if err := b.Mount(ctx); err != nil {
		return fmt.Errorf("mount board: %w", err)
	}
	defer b.Unmount()

	logger.Info("Watching", zap.Strings("codes", b.Codes()), zap.String("feed", cfg.Feed.Source))
	return watch(ctx, cmd.OutOrStdout(), b, !noClearFlag)
}

// watch draws the board once and again after every change until ctx ends.
func watch(ctx context.Context, w io.Writer, b *board.Board, redraw bool) error {
	draw := func() {
		if redraw {
			fmt.Fprint(w, clearScreen)
		}
		fmt.Fprint(w, render.Table("Live prices "+time.Now().Format("15:04:05"), b.Snapshot()))
	}

	draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-b.Changed():
			if !ok {
				return nil
			}
			draw()
		}
	}
}
