package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/modoterra/tailcast/internal/buildinfo"
	"github.com/modoterra/tailcast/pkg/config"
	"github.com/modoterra/tailcast/pkg/core"
	"github.com/modoterra/tailcast/pkg/daemon"
)

var flags struct {
	config string
	socket string
	listen string
	file   string
	level  string
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "tailcastd",
	Short:        "Follow a log source and stream it to viewers",
	SilenceUsage: true,
	RunE:         run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tailcastd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.config, "config", "", "path to tailcast.yaml or tailcast.toml")
	f.StringVar(&flags.socket, "socket", "", "control socket path (overrides config)")
	f.StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config)")
	f.StringVar(&flags.file, "file", "", "follow this file (overrides config source)")
	f.StringVar(&flags.level, "log-level", "", "debug, info, warn or error (overrides config)")
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("socket") {
		cfg.Socket = flags.socket
	}
	if f.Changed("listen") {
		cfg.HTTP.Listen = flags.listen
	}
	if f.Changed("file") {
		cfg.Source = config.SourceConfig{Kind: string(core.KindFile), Path: flags.file, Backfill: cfg.Source.Backfill}
	}
	if f.Changed("log-level") {
		cfg.Log.Level = flags.level
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config: %s\n", e)
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxBackups: cfg.MaxBackups,
		}
		out = io.MultiWriter(os.Stderr, lj)
		closer = lj
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	return slog.New(handler), closer, nil
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)
	if cfg.FilePath != "" {
		logger.Info("config loaded", "path", cfg.FilePath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := daemon.NewSource(cfg.Source, logger)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg, src, daemon.NewSystemdNotifier(logger), logger)
	if err != nil {
		return err
	}

	logger.Info("starting tailcastd", "version", buildinfo.Version)
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "err", err)
		return err
	}
	return nil
}
