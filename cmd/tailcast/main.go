package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/tailcast/internal/buildinfo"
	"github.com/modoterra/tailcast/pkg/config"
	"github.com/modoterra/tailcast/pkg/transport/uds"
	tuimodel "github.com/modoterra/tailcast/pkg/tui/model"
)

var (
	configPath string
	socketPath string
	streamURL  string

	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "tailcast",
	Short:             "Live log viewer for tailcastd",
	Long:              "tailcast follows the log stream published by tailcastd, in a terminal UI or as plain text.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runTUI,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to tailcast.yaml or tailcast.toml")
	pf.StringVar(&socketPath, "socket", "", "daemon socket path (overrides config)")
	pf.StringVar(&streamURL, "url", "", "stream URL (overrides config)")

	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	pf := cmd.Flags()
	if pf.Changed("socket") {
		c.Socket = socketPath
	}
	if pf.Changed("url") {
		c.Viewer.URL = streamURL
	}
	cfg = c
	return nil
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	app := tuimodel.New(tuimodel.Options{
		URL:            cfg.StreamURL(),
		MaxLines:       cfg.Viewer.MaxLines,
		ReconnectDelay: cfg.Viewer.ReconnectDelay.D(),
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", cfg.Socket, err)
	}
	return client, nil
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the daemon is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()

		var pong uds.PingResponse
		if err := client.Call(ctx, uds.MethodPing, nil, &pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ (tailcastd %s)\n", pong.Version)
		}
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tailcast %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}
