package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/mkleene/chime/internal/protocol"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the currently playing track",
	Long: `Query the daemon and display the currently playing track.

The output format is a Go template. Available fields:
.Title, .Channel, .Position, .Duration, .State, .Volume

Exit codes:
  0 - Track is currently playing
  1 - Nothing playing, or daemon not running`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringP("format", "f", "{{.Title}} [{{.Channel}}]", "Output format template")
	statusCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled)")
	statusCmd.Flags().Bool("marquee", false, "Scroll text that exceeds the fixed width")
}

// statusInfo is the template context for the status command.
type statusInfo struct {
	Title    string
	Channel  string
	Position string
	Duration string
	State    string
	Volume   int
}

func runStatus(cmd *cobra.Command, args []string) error {
	reply, err := sendAction(protocol.ActionGetCurrentState, nil)
	if err != nil {
		os.Exit(1)
		return nil
	}
	if reply.State == nil || reply.State.CurrentTrack() == nil {
		os.Exit(1)
		return nil
	}

	state := reply.State
	track := state.CurrentTrack()

	phase := "paused"
	if state.IsPlaying {
		phase = "playing"
	}

	info := statusInfo{
		Title:    track.Title,
		Channel:  track.Channel,
		Position: formatClock(state.CurrentTime),
		Duration: formatClock(state.Duration),
		State:    phase,
		Volume:   state.Volume,
	}

	format, _ := cmd.Flags().GetString("format")
	output, err := formatStatus(info, format)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	marquee, _ := cmd.Flags().GetBool("marquee")
	if width > 0 {
		if marquee {
			output = marqueeText(output, width, 2, "   ")
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)

	if !state.IsPlaying {
		os.Exit(1)
	}
	return nil
}

// formatStatus applies the template to the status data
func formatStatus(info statusInfo, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, info); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// formatClock renders seconds as m:ss.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// padToWidth pads or truncates text to a fixed display width,
// measured in display columns so wide runes count correctly. Text
// longer than width is truncated with a "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)

	if currentWidth > width {
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)
		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
		if resultWidth := runewidth.StringWidth(result); resultWidth < width {
			return result + strings.Repeat(" ", width-resultWidth)
		} else if resultWidth > width {
			return runewidth.Truncate(result, width, "")
		}
		return result
	}

	if currentWidth < width {
		return text + strings.Repeat(" ", width-currentWidth)
	}
	return text
}

// marqueeText scrolls text that exceeds width through a fixed
// window. The position derives from the wall clock (speed columns
// per second), so repeated invocations from a status bar advance the
// window without any state between calls. Text that fits is padded
// statically instead.
func marqueeText(text string, width int, speed int, separator string) string {
	if width <= 0 {
		return text
	}

	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	// Doubling the text around the separator makes the loop seamless.
	extended := []rune(text + separator + text)
	totalChars := len(extended)
	position := int(time.Now().Unix()*int64(speed)) % totalChars

	var result []rune
	resultWidth := 0
	for i := 0; i < totalChars && resultWidth < width; i++ {
		r := extended[(position+i)%totalChars]
		rw := runewidth.RuneWidth(r)
		if resultWidth+rw > width {
			break
		}
		result = append(result, r)
		resultWidth += rw
	}

	if resultWidth < width {
		return string(result) + strings.Repeat(" ", width-resultWidth)
	}
	return string(result)
}
