package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modoterra/tailcast/pkg/daemon/service"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the tailcastd systemd user service",
}

var serviceBinary string

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install, enable and start tailcastd as a user service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		u := service.Unit{
			Binary:     serviceBinary,
			ConfigPath: cfg.FilePath,
			WorkingDir: wd,
		}
		if err := service.Install(u); err != nil {
			return err
		}
		path, _ := service.UnitPath()
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s ✓\n", path)
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop, disable and remove the user service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "uninstalled ✓")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the service is installed and the socket is up",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), service.Status(cfg.Socket))
	},
}

func init() {
	serviceInstallCmd.Flags().StringVar(&serviceBinary, "binary", "", "path to tailcastd (default: looked up on PATH)")
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}
