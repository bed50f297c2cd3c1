package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and engine health",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			health, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:   %s (up %s)\n", health.Status,
				(time.Duration(health.UptimeSeconds) * time.Second).String())
			fmt.Fprintf(out, "Engine:   %s", health.Engine.Phase)
			if health.Engine.PID > 0 {
				fmt.Fprintf(out, " (pid %d)", health.Engine.PID)
			}
			fmt.Fprintln(out)
			if health.Engine.Fatal {
				fmt.Fprintln(out, "          restart attempts exhausted, manual intervention required")
			} else if health.Engine.ConsecutiveFailures > 0 {
				fmt.Fprintf(out, "          %d consecutive probe failures, %d restart attempts\n",
					health.Engine.ConsecutiveFailures, health.Engine.RestartAttempts)
			}
			fmt.Fprintf(out, "Queue:    %d pending\n", health.QueueSize)
			if health.CurrentTask != "" {
				fmt.Fprintf(out, "Active:   %s\n", health.CurrentTask)
			}
			fmt.Fprintf(out, "Database: %s (%d tasks)\n", databaseSummary(health.Database.Readable,
				health.Database.IntegrityCheck), health.Database.TotalTasks)
			return nil
		},
	}
}

func databaseSummary(readable, integrity bool) string {
	switch {
	case readable && integrity:
		return "ok"
	case readable:
		return "integrity check failed"
	default:
		return "unreadable"
	}
}
