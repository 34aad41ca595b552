package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey-austin/playsync/internal/core"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// execute runs one command builder and prints the routing result.
func execute(cmd *cobra.Command, build core.CommandBuilder) error {
	app := fromContext(cmd)
	ctx, cancel := app.commandContext(cmd)
	defer cancel()
	result, err := app.service.Execute(ctx, build)
	if err != nil {
		return err
	}
	return app.print(result)
}

func simpleCommand(use string, short string, name ps.CommandName) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.Fixed(name, nil))
		},
	}
}

func playCommand() *cobra.Command {
	return simpleCommand("play", "Start playback", ps.CmdPlay)
}

func pauseCommand() *cobra.Command {
	return simpleCommand("pause", "Pause playback", ps.CmdPause)
}

func nextCommand() *cobra.Command {
	return simpleCommand("next", "Skip to next item", ps.CmdNext)
}

func prevCommand() *cobra.Command {
	return simpleCommand("prev", "Skip to previous item", ps.CmdPrev)
}

func seekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek <seconds|+delta|-delta>",
		Short: "Seek within the current track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.SeekTo(args[0]))
		},
	}
}

func volumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "volume <0..1|+delta|-delta>",
		Short: "Set volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.SetVolume(args[0]))
		},
	}
}

func muteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mute [on|off|toggle]",
		Short: "Set mute",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.SetMuted(firstArg(args)))
		},
	}
}

func shuffleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shuffle [on|off|toggle]",
		Short: "Set shuffle",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.SetShuffle(firstArg(args)))
		},
	}
}

func repeatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repeat <off|all|one>",
		Short: "Set repeat mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, core.SetRepeat(args[0]))
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
