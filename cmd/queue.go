package cmd

import (
	"fmt"
	"strconv"

	"github.com/mkleene/chime/internal/protocol"
	"github.com/spf13/cobra"
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show or edit the play queue",
	Long: `Show the play queue, or edit it with a subcommand.

Without a subcommand the queue is listed with the current track
marked. Positions shown in the listing are the positions used by
'queue remove'.`,
	RunE: runQueueList,
}

// queueAddCmd represents the queue add command
var queueAddCmd = &cobra.Command{
	Use:   "add <query or video-id>",
	Short: "Add a track to the end of the queue",
	Long: `Add a track to the end of the queue without interrupting playback.

Adding a track that is already queued is a no-op; the daemon reports
the duplicate and the queue is left unchanged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQueueAdd,
}

// queueRemoveCmd represents the queue remove command
var queueRemoveCmd = &cobra.Command{
	Use:   "remove <position>",
	Short: "Remove a track from the queue",
	Long: `Remove the track at the given position (as shown by 'chime queue').

Removing the playing track stops playback; removing an earlier track
shifts positions without disturbing what is playing.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueueRemove,
}

// queueClearCmd represents the queue clear command
var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all tracks and stop playback",
	RunE:  runQueueClear,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueClearCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	reply, err := sendAction(protocol.ActionGetCurrentState, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch queue: %w", err)
	}
	if reply.State == nil {
		return fmt.Errorf("daemon returned no state")
	}

	state := reply.State
	if len(state.Queue) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	for i, track := range state.Queue {
		marker := "  "
		if i == state.CurrentIndex {
			if state.IsPlaying {
				marker = "▶ "
			} else {
				marker = "⏸ "
			}
		}
		fmt.Printf("%s%2d. %s  [%s]\n", marker, i+1, padToWidth(track.Title, 48), track.Channel)
	}
	return nil
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	track, err := resolveTrack(args)
	if err != nil {
		return err
	}

	reply, err := sendAction(protocol.ActionAddToQueue, track)
	if err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	if !reply.Added && reply.Reason == "duplicate" {
		fmt.Printf("Already queued: %s\n", track.Title)
		return nil
	}
	fmt.Printf("Added: %s\n", track.Title)
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	position, err := strconv.Atoi(args[0])
	if err != nil || position < 1 {
		return fmt.Errorf("invalid position: %s (use the numbers shown by 'chime queue')", args[0])
	}

	index := position - 1
	if _, err := sendAction(protocol.ActionRemoveFromQueue, protocol.RemovePayload{Index: &index}); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	if _, err := sendAction(protocol.ActionClearQueue, nil); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}
