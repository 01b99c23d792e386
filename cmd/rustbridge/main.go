// Package main is the entry point for the rustbridge analyzer bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/rustbridge/internal/analyzer"
	"github.com/dshills/rustbridge/internal/command"
	"github.com/dshills/rustbridge/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		workspace   string
		analyzerBin string
		logLevel    string
	)

	root := &cobra.Command{
		Use:           "rustbridge",
		Short:         "Drive rust-analyzer through a line-oriented command protocol",
		Long:          "rustbridge keeps one rust-analyzer process alive and exposes its\nsource intelligence as JSON commands read from stdin, one per line.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if workspace != "" {
				cfg.Analyzer.Workspace = workspace
			}
			if analyzerBin != "" {
				cfg.Analyzer.Command = analyzerBin
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if cfg.Analyzer.Workspace == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				cfg.Analyzer.Workspace = wd
			}

			logger, err := buildLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return serve(cmd.Context(), cfg, logger)
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	root.Flags().StringVarP(&workspace, "workspace", "w", "", "project root the analyzer operates on")
	root.Flags().StringVar(&analyzerBin, "analyzer-bin", "", "analyzer executable to spawn")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(&cobra.Command{
		Use:   "commands",
		Short: "List the available command names",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range command.NewDefaultRegistry().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// serve builds the session and pumps commands until stdin closes or the
// context is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	session := analyzer.NewSession(analyzer.Config{
		Process: analyzer.ProcessConfig{
			Command: cfg.Analyzer.Command,
			Args:    cfg.Analyzer.Args,
		},
		Workspace:       cfg.Analyzer.Workspace,
		ShutdownGrace:   cfg.Analyzer.ShutdownGrace,
		MaxDecodeErrors: cfg.Analyzer.MaxDecodeErrors,
	}, logger)

	dispatcher := command.NewDispatcher(session, command.NewDefaultRegistry(), command.Timeouts{
		Navigation: cfg.Timeouts.Navigation,
		Refactor:   cfg.Timeouts.Refactor,
		Project:    cfg.Timeouts.Project,
	}, logger)

	srv := newServer(session, dispatcher, logger)
	return srv.Run(ctx, os.Stdin, os.Stdout)
}

func buildLogger(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// stdout carries the command protocol; logs go to stderr only.
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
