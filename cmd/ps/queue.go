package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey-austin/playsync/internal/core"
	"github.com/mikey-austin/playsync/pkg/ps"
)

func queueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Edit the session queue",
	}
	cmd.AddCommand(queueListCommand())
	cmd.AddCommand(queueAddCommand())
	cmd.AddCommand(queueRemoveCommand())
	cmd.AddCommand(queueMoveCommand())
	cmd.AddCommand(queueClearCommand())
	cmd.AddCommand(queueSetCommand())
	return cmd
}

func queueListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			result, err := app.service.Status(ctx)
			if err != nil {
				return err
			}
			if app.human {
				return app.printer.Print(result)
			}
			return app.printer.Print(struct {
				Queue        []ps.QueueItem `json:"queue"`
				QueueVersion int64          `json:"queue_version"`
			}{result.Queue, result.QueueVersion})
		},
	}
}

func queueAddCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "add <track-id>...",
		Short: "Add tracks to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.QueueAdd(args, at))
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "insert index (default append)")
	return cmd
}

func queueRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a queue entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.QueueRemove(args[0]))
		},
	}
}

func queueMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Move a queue entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.QueueMove(args[0], args[1]))
		},
	}
}

func queueClearCommand() *cobra.Command {
	return simpleCommand("clear", "Clear the queue", ps.CmdClearQueue)
}

func queueSetCommand() *cobra.Command {
	var start string
	cmd := &cobra.Command{
		Use:   "set <track-id>...",
		Short: "Replace the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.QueueSet(args, start))
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "index to start at")
	return cmd
}
