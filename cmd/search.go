package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mkleene/chime/internal/config"
	"github.com/mkleene/chime/internal/protocol"
	"github.com/mkleene/chime/pkg/ytsearch"
	"github.com/spf13/cobra"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search YouTube for playable tracks",
	Long: `Search YouTube for embeddable videos matching the query.

Results are numbered; use 'chime play' or 'chime queue add' with a
query to play or enqueue the top result directly.

Requires a YouTube Data API key in the configuration file
(~/.config/chime/config.yaml, key: youtube.api_key) or the
CHIME_YOUTUBE_API_KEY environment variable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	results, err := searchTracks(query, 0)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%2d. %s  [%s]  (%s)\n", i+1, r.Title, r.Channel, r.VideoID)
	}
	return nil
}

// searchTracks runs a search with the configured API key. A limit of
// 0 uses the configured search limit.
func searchTracks(query string, limit int) ([]ytsearch.Result, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.YouTube.APIKey == "" {
		return nil, fmt.Errorf("YouTube API key not configured (set youtube.api_key or CHIME_YOUTUBE_API_KEY)")
	}
	if limit <= 0 {
		limit = cfg.SearchLimit
	}

	client, err := ytsearch.NewClient(ytsearch.Config{APIKey: cfg.YouTube.APIKey})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := client.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

// resolveTrack turns a query or bare video ID into a playable track.
// An 11-character single argument with no spaces is treated as a
// video ID; anything else goes through search and the top result
// wins.
func resolveTrack(args []string) (protocol.Track, error) {
	query := strings.Join(args, " ")

	if len(args) == 1 && looksLikeVideoID(args[0]) {
		return protocol.Track{VideoID: args[0], Title: args[0]}, nil
	}

	results, err := searchTracks(query, 1)
	if err != nil {
		return protocol.Track{}, err
	}
	if len(results) == 0 {
		return protocol.Track{}, fmt.Errorf("no results for %q", query)
	}

	r := results[0]
	return protocol.Track{
		VideoID:   r.VideoID,
		Title:     r.Title,
		Channel:   r.Channel,
		Thumbnail: r.Thumbnail,
	}, nil
}

// looksLikeVideoID reports whether s has the shape of a YouTube video
// ID: exactly 11 characters from the base64url alphabet.
func looksLikeVideoID(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
