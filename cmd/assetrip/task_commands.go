package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assetrip/internal/api"
	"assetrip/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <archive>",
		Short: "Upload an archive for extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := c.Upload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s queued (%s)\n", resp.TaskID, resp.Status)
			return nil
		},
	}
}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List extraction tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}

			var statuses []queue.Status
			if statusFilter != "" {
				status, ok := queue.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				statuses = append(statuses, status)
			}

			listing, err := c.Tasks(cmd.Context(), statuses...)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(listing.Tasks))
			for _, task := range listing.Tasks {
				rows = append(rows, []string{
					task.ID,
					task.Status,
					task.OriginalFilename,
					humanize.Bytes(uint64(task.FileSizeBytes)),
					task.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					task.ErrorCode,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "File", "Size", "Created", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "%d total: %d pending, %d processing, %d completed, %d failed\n",
				listing.Stats.Total, listing.Stats.Pending, listing.Stats.Processing,
				listing.Stats.Completed, listing.Stats.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (pending, processing, completed, failed)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			task, err := c.Task(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTask(cmd, task)
			return nil
		},
	}
}

func printTask(cmd *cobra.Command, task api.TaskView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", task.ID)
	fmt.Fprintf(out, "Status:    %s\n", task.Status)
	fmt.Fprintf(out, "File:      %s (%s)\n", task.OriginalFilename, humanize.Bytes(uint64(task.FileSizeBytes)))
	if task.FileHash != "" {
		fmt.Fprintf(out, "SHA-256:   %s\n", task.FileHash)
	}
	fmt.Fprintf(out, "Created:   %s\n", task.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if task.StartedAt != nil {
		fmt.Fprintf(out, "Started:   %s\n", task.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", task.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if task.ExportPath != "" {
		fmt.Fprintf(out, "Export:    %s (%s)\n", task.ExportPath, humanize.Bytes(uint64(task.ExportSizeBytes)))
	}
	if task.ErrorCode != "" {
		fmt.Fprintf(out, "Error:     [%s] %s\n", task.ErrorCode, task.ErrorMessage)
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <task-id>",
		Short: "Download a completed task's assets as a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}

			dest := output
			if dest == "" {
				dest = args[0] + "_assets.zip"
			}
			if strings.TrimSpace(dest) == "" {
				return fmt.Errorf("empty output path")
			}
			if err := c.Download(cmd.Context(), args[0], dest); err != nil {
				return err
			}
			abs, err := filepath.Abs(dest)
			if err != nil {
				abs = dest
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", abs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to <task-id>_assets.zip)")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Delete a task and its stored artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s deleted\n", args[0])
			return nil
		},
	}
}
