// package formatter renders resolved tracks and cache statistics as text, JSON or CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/repositories"
	"github.com/desertthunder/audiocache/internal/shared"
)

// Formats lists the names accepted by [Render].
var Formats = []string{"text", "json", "csv"}

// FormatDuration renders milliseconds as m:ss or h:mm:ss.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func trackDuration(t models.Track) string {
	if t.Info.IsStream {
		return "LIVE"
	}
	return FormatDuration(t.Info.LengthMS)
}

// ResultToCSV converts a LoadResult to CSV with columns: Position, Title, Author, Duration, URI, Source
func ResultToCSV(res models.LoadResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Title", "Author", "Duration", "URI", "Source"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range res.Tracks {
		record := []string{
			strconv.Itoa(i + 1),
			track.Info.Title,
			track.Info.Author,
			trackDuration(track),
			track.Info.URI,
			track.Info.SourceName,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ResultToJSON returns the indented wire form of res.
func ResultToJSON(res models.LoadResult) ([]byte, error) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return append(data, '\n'), nil
}

// ResultToText lists the tracks of res under a short header.
func ResultToText(res models.LoadResult, query string) []byte {
	var buf bytes.Buffer

	if query != "" {
		fmt.Fprintf(&buf, "Query: %s\n", query)
	}
	fmt.Fprintf(&buf, "Result: %s\n", res.LoadType)
	if res.PlaylistInfo.Name != "" {
		fmt.Fprintf(&buf, "Playlist: %s\n", res.PlaylistInfo.Name)
	}
	if res.Exception != nil && res.Exception.Message != "" {
		fmt.Fprintf(&buf, "Error: %s\n", res.Exception.Message)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n", len(res.Tracks))

	if len(res.Tracks) > 0 {
		buf.WriteString("\n")
	}
	for i, track := range res.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s [%s]\n", i+1, track.Info.Author, track.Info.Title, trackDuration(track))
	}
	return buf.Bytes()
}

// Render writes res to w in the named format.
func Render(w io.Writer, format string, res models.LoadResult, query string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "", "text":
		data = ResultToText(res, query)
	case "json":
		data, err = ResultToJSON(res)
	case "csv":
		data, err = ResultToCSV(res)
	default:
		return fmt.Errorf("%w: unknown format %q (want one of %v)", shared.ErrInvalidArgument, format, Formats)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteExport renders res into the file at path.
func WriteExport(res models.LoadResult, format, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}

	var buf bytes.Buffer
	if err := Render(&buf, format, res, ""); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// StatsToText renders per-table row counts sorted by table name.
func StatsToText(stats repositories.Stats) []byte {
	tables := make([]string, 0, len(stats))
	for t := range stats {
		tables = append(tables, string(t))
	}
	slices.Sort(tables)

	var buf bytes.Buffer
	total := 0
	for _, t := range tables {
		n := stats[models.Table(t)]
		total += n
		fmt.Fprintf(&buf, "%-10s %d\n", t, n)
	}
	fmt.Fprintf(&buf, "%-10s %d\n", "total", total)
	return buf.Bytes()
}

// MigrationsToText renders one line per migration with its applied state.
func MigrationsToText(states []shared.MigrationState) []byte {
	var buf bytes.Buffer
	for _, s := range states {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}
		fmt.Fprintf(&buf, "%04d %-30s %s\n", s.Version, s.Name, mark)
	}
	return buf.Bytes()
}
