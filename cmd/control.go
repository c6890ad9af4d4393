package cmd

import (
	"fmt"
	"strconv"

	"github.com/mkleene/chime/internal/bus"
	"github.com/mkleene/chime/internal/config"
	"github.com/mkleene/chime/internal/protocol"
	"github.com/spf13/cobra"
)

// toggleCmd represents the toggle command
var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle play/pause",
	Long: `Toggle playback of the current track.

The daemon always biases toward playing: if the player is stalled or
paused for any reason, toggle resumes it.`,
	RunE: runToggle,
}

// nextCmd represents the next command
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next track",
	Long: `Skip to the next track in the queue.

With shuffle enabled a random different track is chosen; otherwise
playback advances in order and wraps at the end of the queue.`,
	RunE: runNext,
}

// prevCmd represents the prev command
var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go back to the previous track",
	Long:  `Go back to the previous track in the queue, wrapping to the last track from the first.`,
	RunE:  runPrev,
}

// seekCmd represents the seek command
var seekCmd = &cobra.Command{
	Use:   "seek <seconds>",
	Short: "Seek within the current track",
	Long:  `Seek to an absolute position (in seconds) within the current track.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSeek,
}

// shuffleCmd represents the shuffle command
var shuffleCmd = &cobra.Command{
	Use:   "shuffle",
	Short: "Toggle shuffle mode",
	Long:  `Toggle shuffle mode on or off.`,
	RunE:  runShuffle,
}

// repeatCmd represents the repeat command
var repeatCmd = &cobra.Command{
	Use:   "repeat",
	Short: "Cycle the repeat mode",
	Long:  `Cycle the repeat mode: off, repeat all, repeat one.`,
	RunE:  runRepeat,
}

// muteCmd represents the mute command
var muteCmd = &cobra.Command{
	Use:   "mute",
	Short: "Toggle mute",
	Long:  `Toggle the player's mute state.`,
	RunE:  runMute,
}

// volumeCmd represents the volume command
var volumeCmd = &cobra.Command{
	Use:   "volume <0-100>",
	Short: "Set playback volume",
	Long: `Set the playback volume.

Volume level must be between 0 and 100. Out-of-range values are
clamped by the daemon.`,
	Args: cobra.ExactArgs(1),
	RunE: runVolume,
}

func init() {
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(seekCmd)
	rootCmd.AddCommand(shuffleCmd)
	rootCmd.AddCommand(repeatCmd)
	rootCmd.AddCommand(muteCmd)
	rootCmd.AddCommand(volumeCmd)
}

// dialDaemon connects to the daemon's control socket.
func dialDaemon() (*bus.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	client, err := bus.Dial(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon at %s (is 'chime daemon' running?): %w", cfg.SocketPath, err)
	}
	return client, nil
}

// sendAction performs one command round-trip against the daemon.
func sendAction(action protocol.Action, payload any) (protocol.Reply, error) {
	client, err := dialDaemon()
	if err != nil {
		return protocol.Reply{}, err
	}
	defer client.Close()

	msg, err := protocol.NewMessage(protocol.TargetBackground, action, payload)
	if err != nil {
		return protocol.Reply{}, err
	}

	reply, err := client.Send(msg)
	if err != nil {
		return protocol.Reply{}, err
	}
	if !reply.Success {
		return reply, fmt.Errorf("%s", reply.Error)
	}
	return reply, nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	if _, err := sendAction(protocol.ActionTogglePlay, nil); err != nil {
		return fmt.Errorf("failed to toggle playback: %w", err)
	}
	return nil
}

func runNext(cmd *cobra.Command, args []string) error {
	if _, err := sendAction(protocol.ActionNextTrack, nil); err != nil {
		return fmt.Errorf("failed to skip to next track: %w", err)
	}
	return nil
}

func runPrev(cmd *cobra.Command, args []string) error {
	if _, err := sendAction(protocol.ActionPrevTrack, nil); err != nil {
		return fmt.Errorf("failed to go to previous track: %w", err)
	}
	return nil
}

func runSeek(cmd *cobra.Command, args []string) error {
	seconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil || seconds < 0 {
		return fmt.Errorf("invalid seek position: %s (must be a non-negative number of seconds)", args[0])
	}

	if _, err := sendAction(protocol.ActionSeek, protocol.SeekPayload{Time: seconds}); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

func runShuffle(cmd *cobra.Command, args []string) error {
	if _, err := sendAction(protocol.ActionToggleShuffle, nil); err != nil {
		return fmt.Errorf("failed to toggle shuffle: %w", err)
	}
	return nil
}

func runRepeat(cmd *cobra.Command, args []string) error {
	if _, err := sendAction(protocol.ActionToggleRepeat, nil); err != nil {
		return fmt.Errorf("failed to cycle repeat mode: %w", err)
	}
	return nil
}

func runMute(cmd *cobra.Command, args []string) error {
	if _, err := sendAction(protocol.ActionToggleMute, nil); err != nil {
		return fmt.Errorf("failed to toggle mute: %w", err)
	}
	return nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid volume level: %s (must be a number 0-100)", args[0])
	}

	if _, err := sendAction(protocol.ActionSetVolume, protocol.VolumePayload{Volume: level}); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}
