// package shared defines shared helpers
package shared

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var whitespace = regexp.MustCompile(`\s+`)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// ParseLogLevel parses a level name, falling back to info.
func ParseLogLevel(s string) log.Level {
	level, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// CollapseSpaces trims s and replaces runs of whitespace with a single space.
func CollapseSpaces(s string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NormalizeTrackKey builds a case-insensitive comparison key from a title and artist.
func NormalizeTrackKey(title, artist string) string {
	return strings.ToLower(CollapseSpaces(title)) + "|" + strings.ToLower(CollapseSpaces(artist))
}

// TrackDescriptor builds the free-text "title artist" string used to search for a track.
func TrackDescriptor(title, artist string) string {
	return CollapseSpaces(title + " " + artist)
}
