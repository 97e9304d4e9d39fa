package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modoterra/tailcast/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and check tailcast.yaml / tailcast.toml",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		if len(args) > 0 {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			loaded, err := config.Load(args[0])
			if err != nil {
				return err
			}
			c = loaded
		}
		name := c.FilePath
		if name == "" {
			name = "defaults"
		}

		errs := config.Validate(c)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%s source)\n", name, c.Source.Kind)
			return nil
		}
		w := cmd.ErrOrStderr()
		fmt.Fprintf(w, "%s: %d error(s)\n", name, len(errs))
		for _, e := range errs {
			fmt.Fprintf(w, "  • %s\n", e)
		}
		return fmt.Errorf("%s is invalid", name)
	},
}

var (
	configInitOutput string
	configInitForce  bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default filled in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configInitOutput
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.Save(config.Default(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "tailcast.yaml", "output file (.yaml or .toml)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
}
