package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/engine"
	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/feed"
	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/series"
	"github.com/shubham-shewale/quote-chart/cmd/chart/internal/tui"
	"github.com/shubham-shewale/quote-chart/pkg/config"
)

var (
	serverURL string
	cursor    string
	width     int
	headless  bool
	logLevel  string
	logFile   string
)

var rootCmd = &cobra.Command{
	Use:   "chart",
	Short: "Live terminal chart of the quote feed",
	Long: `Chart fetches the quote history from the gateway, then keeps it in sync
over a WebSocket and draws the selected ticker in the terminal.

Examples:
  chart                                   # Connect to http://localhost:8080
  chart --server http://quotes:8080       # Custom gateway
  chart --cursor index --width 120        # Index based sync, wider window
  chart --headless --log-level debug      # Log frames instead of drawing`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "", "Gateway base URL (overrides CHART_SERVER_URL)")
	rootCmd.Flags().StringVarP(&cursor, "cursor", "c", "", "Sync cursor: timestamp or index (overrides CHART_CURSOR)")
	rootCmd.Flags().IntVarP(&width, "width", "w", 0, "Visible points (overrides CHART_WINDOW_WIDTH)")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "Log frames instead of running the terminal UI")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "chart.log", "Log destination while the terminal UI runs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serverURL != "" {
		cfg.Chart.ServerURL = serverURL
	}
	if cursor != "" {
		cfg.Chart.Cursor = cursor
	}
	if width > 0 {
		cfg.Chart.WindowWidth = width
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}
	if !headless {
		// the terminal belongs to the UI
		cfg.Logger.OutputPaths = []string{logFile}
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	scheme, err := series.ParseScheme(cfg.Chart.Cursor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := feed.NewHTTPSource(cfg.Chart.ServerURL, nil)
	chartCfg, err := source.Config(ctx)
	if err != nil {
		return err
	}
	if err := series.CheckInterval(scheme, chartCfg.TickIntervalSec); err != nil {
		return err
	}
	logger.Info("Chart config loaded",
		zap.Int("tickers", len(chartCfg.Tickers)),
		zap.Float64("tick_interval_sec", chartCfg.TickIntervalSec),
		zap.Stringer("cursor", scheme))

	wsURL, err := feed.WebSocketURL(cfg.Chart.ServerURL)
	if err != nil {
		return err
	}
	wsFeed := feed.NewWSFeed(wsURL, cfg.Chart.ReconnectWait, logger)

	opts := engine.Options{
		Config:       chartCfg,
		Scheme:       scheme,
		Width:        cfg.Chart.WindowWidth,
		PollInterval: cfg.Chart.PollInterval,
		History:      cfg.Chart.History,
		Transport:    wsFeed,
		Source:       source,
		Logger:       logger,
	}

	if headless {
		opts.Renderer = engine.NewLogRenderer(logger)
		return runLoops(ctx, engine.New(opts), wsFeed, nil)
	}

	renderer := &tui.ProgramRenderer{}
	opts.Renderer = renderer
	eng := engine.New(opts)

	program := tea.NewProgram(tui.New(eng), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	renderer.Attach(program)
	return runLoops(ctx, eng, wsFeed, program)
}

// runLoops runs the feed and the engine, plus the UI when program is set,
// and returns once any of them stops.
func runLoops(ctx context.Context, eng *engine.Engine, wsFeed *feed.WSFeed, program *tea.Program) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		engErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		wsFeed.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		engErr = eng.Run(ctx)
		if program != nil {
			program.Quit()
		}
	}()

	var uiErr error
	if program != nil {
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			uiErr = err
		}
		cancel()
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	return errors.Join(engErr, uiErr)
}
