package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mikey-austin/playsync/internal/core"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct {
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	out := p.writer()
	switch data := v.(type) {
	case core.StatusResult:
		return printStatus(out, data)
	case core.DevicesResult:
		return printDevices(out, data)
	case core.CommandResult:
		return printCommand(out, data)
	case core.TransferResult:
		return printTransfer(out, data)
	default:
		_, err := fmt.Fprintln(out, "ok")
		return err
	}
}

func (p HumanPrinter) writer() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

// FormatStatus renders a status block without printing it.
func FormatStatus(result core.StatusResult) string {
	var b strings.Builder
	_ = printStatus(&b, result)
	return b.String()
}

func printStatus(out io.Writer, result core.StatusResult) error {
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	audio := "none"
	if result.AudioDeviceID != "" {
		audio = fmt.Sprintf("%s (%s)", result.AudioDeviceName, result.AudioDeviceID)
		if result.IsAudioDevice {
			audio += " [this device]"
		}
	}
	fmt.Fprintf(tw, "Audio device:\t%s\n", audio)
	if !result.SessionExists || result.State == nil {
		if result.Reclaimable {
			fmt.Fprintln(tw, "Session:\tended, reclaimable")
		} else {
			fmt.Fprintln(tw, "Session:\tnone")
		}
		return tw.Flush()
	}

	state := result.State
	playback := "paused"
	if state.IsPlaying {
		playback = "playing"
	}
	if result.Stale {
		playback += " (stale)"
	}
	fmt.Fprintf(tw, "State:\t%s\n", playback)
	if track := state.CurrentTrack; track != nil {
		fmt.Fprintf(tw, "Track:\t%s\n", trackLabel(*track))
		fmt.Fprintf(tw, "Position:\t%s / %s\n", formatSeconds(result.Position), formatSeconds(track.Duration))
	} else {
		fmt.Fprintf(tw, "Position:\t%s\n", formatSeconds(result.Position))
	}
	volume := fmt.Sprintf("%.0f%%", state.Volume*100)
	if state.Muted {
		volume += " (muted)"
	}
	fmt.Fprintf(tw, "Volume:\t%s\n", volume)
	fmt.Fprintf(tw, "Shuffle:\t%s\n", onOff(state.Shuffle))
	fmt.Fprintf(tw, "Repeat:\t%s\n", state.Repeat)
	fmt.Fprintf(tw, "Queue:\t%d items (v%d)\n", len(result.Queue), result.QueueVersion)
	if result.Handoff != nil {
		fmt.Fprintf(tw, "Transfer:\t%s %s -> %s\n", result.Handoff.Phase, result.Handoff.SourceDeviceID, result.Handoff.TargetDeviceID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(result.Queue) == 0 {
		return nil
	}
	return printQueue(out, result.Queue, state.QueuePosition)
}

func printQueue(out io.Writer, items []ps.QueueItem, current int) error {
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "\nIDX\tTRACK"); err != nil {
		return err
	}
	for i, item := range items {
		marker := " "
		if i == current {
			marker = ">"
		}
		if _, err := fmt.Fprintf(tw, "%s%d\t%s\n", marker, i, item.ID); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printDevices(out io.Writer, result core.DevicesResult) error {
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tTYPE\tROLE\tID"); err != nil {
		return err
	}
	for _, device := range result.Devices {
		role := "-"
		if device.IsAudioDevice {
			role = "audio"
		}
		name := device.Name
		if device.ID == result.SelfID {
			name += " *"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, device.Type, role, device.ID); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printCommand(out io.Writer, result core.CommandResult) error {
	if result.Local {
		_, err := fmt.Fprintf(out, "%s: applied\n", result.Command)
		return err
	}
	_, err := fmt.Fprintf(out, "%s: sent to %s\n", result.Command, result.Target)
	return err
}

func printTransfer(out io.Writer, result core.TransferResult) error {
	if result.Reason != "" {
		_, err := fmt.Fprintf(out, "transfer %s %s (%s)\n", result.TransferID, result.Phase, result.Reason)
		return err
	}
	_, err := fmt.Fprintf(out, "transfer %s %s: %s -> %s\n", result.TransferID, result.Phase, result.Source, result.Target)
	return err
}

func trackLabel(track ps.Track) string {
	label := track.Title
	if label == "" {
		label = track.ID
	}
	if track.ArtistName != "" {
		label = track.ArtistName + " - " + label
	}
	return label
}

func formatSeconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
