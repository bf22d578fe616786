package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efebarandurmaz/chromademo/internal/app"
	"github.com/efebarandurmaz/chromademo/internal/config"
	"github.com/efebarandurmaz/chromademo/internal/demo"
	"github.com/efebarandurmaz/chromademo/internal/metrics"
	"github.com/efebarandurmaz/chromademo/internal/observability"
	"github.com/spf13/cobra"
)

func main() {
	var (
		configPath string
		stats      bool
		jsonReport bool
	)

	rootCmd := &cobra.Command{
		Use:          "chromademo",
		Short:        "Load a sample corpus into a vector database and run example queries",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), configPath, stats, jsonReport)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file path (optional)")
	rootCmd.Flags().BoolVar(&stats, "stats", false, "Print run metrics after the demo")
	rootCmd.Flags().BoolVar(&jsonReport, "json", false, "Print run metrics as JSON")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func runDemo(ctx context.Context, configPath string, stats, jsonReport bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := observability.SetupLogging(observability.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})

	tp, err := app.Tracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	m := metrics.New()
	m.Collection = cfg.Vector.Collection
	defer func() {
		switch {
		case jsonReport:
			data, err := m.JSON()
			if err != nil {
				logger.Error("encoding metrics", "error", err)
				return
			}
			fmt.Println(string(data))
		case stats:
			m.PrintSummary(os.Stdout)
		}
	}()

	client, err := app.Connect(ctx, cfg, logger, m)
	if err != nil {
		logger.Error("an error occurred", "error", err)
		m.Finish([]string{err.Error()})
		return err
	}
	defer client.Close()

	if err := demo.Run(ctx, client, os.Stdout, cfg.Vector.Collection); err != nil {
		logger.Error("an error occurred", "error", err)
		m.Finish([]string{err.Error()})
		return err
	}
	m.Finish(nil)
	return nil
}
