package cmd

import (
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "no padding when width is 0",
			input:    "Hello",
			width:    0,
			expected: "Hello",
		},
		{
			name:     "no padding when width is negative",
			input:    "Hello",
			width:    -1,
			expected: "Hello",
		},
		{
			name:     "pad short text with spaces",
			input:    "Hi",
			width:    10,
			expected: "Hi        ",
		},
		{
			name:     "exact width unchanged",
			input:    "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{
			name:     "handle wide runes",
			input:    "日本語",
			width:    10,
			expected: "日本語    ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := padToWidth(tt.input, tt.width)
			if got != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.expected)
			}
			if tt.width > 0 {
				if w := runewidth.StringWidth(got); w != tt.width {
					t.Errorf("padToWidth(%q, %d) has display width %d", tt.input, tt.width, w)
				}
			}
		})
	}
}

func TestMarqueeTextWidth(t *testing.T) {
	// Whatever the scroll position, the window must be exactly the
	// requested display width.
	long := "A very long track title that cannot fit in the window"
	for _, width := range []int{5, 10, 20, 30} {
		got := marqueeText(long, width, 2, "   ")
		if w := runewidth.StringWidth(got); w != width {
			t.Errorf("marqueeText(..., %d) has display width %d: %q", width, w, got)
		}
	}
}

func TestMarqueeTextShortInput(t *testing.T) {
	// Text that fits is padded statically, not scrolled.
	got := marqueeText("Hi", 10, 2, "   ")
	if got != "Hi        " {
		t.Errorf("marqueeText(short) = %q, want padded static text", got)
	}
}

func TestFormatStatus(t *testing.T) {
	info := statusInfo{
		Title:    "Song",
		Channel:  "Channel",
		Position: "1:05",
		Duration: "3:30",
		State:    "playing",
		Volume:   50,
	}

	tests := []struct {
		name     string
		format   string
		expected string
		wantErr  bool
	}{
		{
			name:     "default format",
			format:   "{{.Title}} [{{.Channel}}]",
			expected: "Song [Channel]",
		},
		{
			name:     "clock fields",
			format:   "{{.Position}}/{{.Duration}}",
			expected: "1:05/3:30",
		},
		{
			name:    "invalid template",
			format:  "{{.Title",
			wantErr: true,
		},
		{
			name:    "unknown field",
			format:  "{{.Nope}}",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatStatus(info, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("formatStatus() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("formatStatus() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("formatStatus() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "0:00"},
		{5.4, "0:05"},
		{65, "1:05"},
		{600, "10:00"},
		{-3, "0:00"},
	}

	for _, tt := range tests {
		if got := formatClock(tt.seconds); got != tt.expected {
			t.Errorf("formatClock(%v) = %q, want %q", tt.seconds, got, tt.expected)
		}
	}
}

func TestLooksLikeVideoID(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"dQw4w9WgXcQ", true},
		{"9bZkp7q19f0", true},
		{"a_b-c_d-e_f", true},
		{"too short", false},
		{"exactly 11!", false},
		{"twelve chars", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := looksLikeVideoID(tt.input); got != tt.expected {
			t.Errorf("looksLikeVideoID(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
