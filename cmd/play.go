package cmd

import (
	"fmt"

	"github.com/mkleene/chime/internal/protocol"
	"github.com/spf13/cobra"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <query or video-id>",
	Short: "Play a track immediately",
	Long: `Play a track immediately, adding it to the queue if needed.

The argument is either an 11-character YouTube video ID or a search
query; for a query the top search result is played. If the track is
already in the queue, playback jumps to it instead of adding a
duplicate.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	track, err := resolveTrack(args)
	if err != nil {
		return err
	}

	reply, err := sendAction(protocol.ActionPlayNew, track)
	if err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}

	if reply.Played {
		fmt.Printf("Playing: %s\n", track.Title)
	}
	return nil
}
