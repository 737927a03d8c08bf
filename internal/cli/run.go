package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/squall/internal/bench/config"
	"github.com/wesleyorama2/squall/internal/bench/control"
	"github.com/wesleyorama2/squall/internal/bench/engine"
	"github.com/wesleyorama2/squall/internal/bench/output"
	"github.com/wesleyorama2/squall/internal/logging"
	"github.com/wesleyorama2/squall/internal/workload"
)

var _ control.Benchmark = (*engine.Engine)(nil)

const controlShutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark from a configuration file",
		Long: `Run every target of a benchmark configuration concurrently and print the
final report.

  squall run --config checkout.yaml
  squall run -c checkout.yaml --json report.json --log-format json
  squall run -c checkout.yaml --listen :7851 --wait-for-start`,
		RunE: runBenchmark,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file (required)")
	cmd.Flags().String("json", "", "Write the report as JSON to this file")
	cmd.Flags().String("html", "", "Write the report as HTML to this file")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	cmd.Flags().Bool("intervals", false, "Include per-interval scorecards in the report")
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().String("log-format", logging.FormatConsole, "Log format: console or json")
	cmd.Flags().Bool("wait-for-start", false, "Hold the run until POST /benchmark/start")
	cmd.Flags().String("listen", "", "Serve the control surface on this address (overrides control.listen)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	jsonPath, _ := cmd.Flags().GetString("json")
	htmlPath, _ := cmd.Flags().GetString("html")
	noColor, _ := cmd.Flags().GetBool("no-color")
	intervals, _ := cmd.Flags().GetBool("intervals")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")
	waitForStart, _ := cmd.Flags().GetBool("wait-for-start")
	listen, _ := cmd.Flags().GetString("listen")

	logger, err := logging.NewWithWriter(logLevel, logFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if listen != "" {
		cfg.Control.Listen = listen
	}
	if waitForStart {
		cfg.Control.WaitForStart = true
	}
	if cfg.Control.WaitForStart && cfg.Control.Listen == "" {
		return fmt.Errorf("waiting for start requires a control listen address")
	}

	eng, err := engine.New(cfg, workload.DefaultRegistry(), engine.WithLogger(logger))
	if err != nil {
		return err
	}

	if cfg.Control.Listen != "" {
		srv, err := control.NewServer(eng, logger, eng.Collector())
		if err != nil {
			return fmt.Errorf("control server: %w", err)
		}
		if err := srv.Start(cfg.Control.Listen); err != nil {
			return fmt.Errorf("control server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), controlShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("control server shutdown", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := eng.Run(ctx)
	if report == nil {
		return runErr
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:    cmd.OutOrStdout(),
		NoColor:   noColor,
		Intervals: intervals,
	})
	console.PrintReport(report)

	if jsonPath != "" {
		if err := report.WriteJSON(jsonPath); err != nil {
			return err
		}
		logger.Info("report written", zap.String("path", jsonPath))
	}
	if htmlPath != "" {
		if err := output.WriteHTML(report, htmlPath); err != nil {
			return err
		}
		logger.Info("report written", zap.String("path", htmlPath))
	}
	return runErr
}
