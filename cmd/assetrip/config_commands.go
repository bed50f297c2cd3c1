package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetrip/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data_dir:    %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "upload_dir:  %s\n", cfg.Paths.UploadDir)
			fmt.Fprintf(out, "export_dir:  %s\n", cfg.Paths.ExportDir)
			fmt.Fprintf(out, "log_dir:     %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "api_bind:    %s\n", cfg.Paths.APIBind)
			fmt.Fprintf(out, "engine:      %s (port %d)\n", cfg.Engine.BinaryPath, cfg.Engine.Port)
			fmt.Fprintf(out, "timeouts:    startup %ds, load %ds, export %ds\n",
				cfg.Engine.StartupTimeout, cfg.Engine.LoadTimeout, cfg.Engine.ExportTimeout)
			fmt.Fprintf(out, "restarts:    max %d, backoff %ds..%ds\n",
				cfg.Engine.MaxRestartAttempts, cfg.Engine.RestartBackoffBase, cfg.Engine.RestartBackoffCap)
			fmt.Fprintf(out, "retention:   %d days (sweep every %dh, enabled=%t)\n",
				cfg.Cleanup.RetentionDays, cfg.Cleanup.SweepIntervalHours, cfg.Cleanup.Enabled)
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if !force {
				if _, _, exists, err := config.Load(""); err == nil && exists {
					return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
				}
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
