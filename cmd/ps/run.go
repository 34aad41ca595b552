package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mikey-austin/playsync/internal/adapters/output"
	"github.com/mikey-austin/playsync/internal/core"
)

func runCommand() *cobra.Command {
	var opts core.RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the session as a playing device",
		Long: "Run a device with a simulated player until interrupted. With --claim it\n" +
			"becomes the audio device when none is active, with --transfer it takes the\n" +
			"role over from the current audio device, and with --reclaim it resumes a\n" +
			"session the hub kept. The role is released on exit unless --keep-session.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Claim, "claim", false, "claim the audio device role")
	cmd.Flags().BoolVar(&opts.Transfer, "transfer", false, "take the role from the current audio device")
	cmd.Flags().BoolVar(&opts.Reclaim, "reclaim", false, "resume the last session")
	cmd.Flags().BoolVar(&opts.KeepSession, "keep-session", false, "keep the role on exit")
	cmd.MarkFlagsMutuallyExclusive("claim", "transfer", "reclaim")
	return cmd
}

func transferCommand() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move playback to this device (run --transfer)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd, core.RunOptions{Transfer: true, KeepSession: keep})
		},
	}
	cmd.Flags().BoolVar(&keep, "keep-session", false, "keep the role on exit")
	return cmd
}

func reclaimCommand() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Resume the last session on this device (run --reclaim)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd, core.RunOptions{Reclaim: true, KeepSession: keep})
		},
	}
	cmd.Flags().BoolVar(&keep, "keep-session", false, "keep the role on exit")
	return cmd
}

func runDevice(cmd *cobra.Command, opts core.RunOptions) error {
	app := fromContext(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	svc := app.deviceService()

	if !app.human {
		opts.OnTransfer = func(result core.TransferResult) {
			_ = app.printer.Print(result)
		}
		return svc.Run(ctx, opts)
	}

	var area *pterm.AreaPrinter
	if !app.quiet {
		var err error
		area, err = pterm.DefaultArea.Start()
		if err != nil {
			return err
		}
		defer func() { _ = area.Stop() }()
		opts.OnView = func(result core.StatusResult) {
			area.Update(output.FormatStatus(result))
		}
	}
	opts.OnTransfer = func(result core.TransferResult) {
		if result.Reason != "" {
			pterm.Warning.Printfln("transfer %s %s: %s", result.TransferID, result.Phase, result.Reason)
			return
		}
		pterm.Success.Printfln("transfer %s %s: %s -> %s", result.TransferID, result.Phase, result.Source, result.Target)
	}
	return svc.Run(ctx, opts)
}
