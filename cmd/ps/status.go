package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mikey-austin/playsync/internal/adapters/output"
	"github.com/mikey-austin/playsync/internal/core"
)

func statusCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if watch {
				return watchStatus(cmd, app)
			}
			ctx, cancel := withTimeout(cmd.Context(), app.timeout+time.Second)
			defer cancel()
			result, err := app.service.Status(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "watch status updates")

	return cmd
}

func devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List connected devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), app.timeout+time.Second)
			defer cancel()
			result, err := app.service.Devices(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

// watchStatus redraws one status block in place for human output and
// prints one document per update otherwise.
func watchStatus(cmd *cobra.Command, app *app) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !app.human {
		var printErr error
		err := app.service.WatchStatus(ctx, func(result core.StatusResult) {
			if printErr == nil {
				printErr = app.printer.Print(result)
			}
		})
		if err != nil {
			return err
		}
		return printErr
	}

	area, err := pterm.DefaultArea.Start()
	if err != nil {
		return err
	}
	defer func() { _ = area.Stop() }()
	return app.service.WatchStatus(ctx, func(result core.StatusResult) {
		area.Update(output.FormatStatus(result))
	})
}
