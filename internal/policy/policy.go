// Package policy decides which resolved tracks a caller may admit.
//
// A [Gate] applies the configured keyword allowlist and denylist to a track descriptor.
// A non-empty allowlist takes precedence: only descriptors containing one of its
// keywords pass and the denylist is not consulted. [URLAllowed] restricts URLs to the
// supported streaming domains.
package policy

import (
	"io"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
)

// Lists supplies the keyword lists. [shared.Settings] implements it.
type Lists interface {
	Allowlist() []string
	Denylist() []string
}

// Gate filters tracks against keyword lists read on every call, so list edits apply immediately.
type Gate struct {
	lists  Lists
	logger *log.Logger
}

func NewGate(lists Lists, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Gate{lists: lists, logger: shared.WithLogger(logger, "component", "policy")}
}

// IsAllowed reports whether descriptor passes the keyword lists. Matching is case-insensitive.
func (g *Gate) IsAllowed(descriptor string) bool {
	if g == nil || g.lists == nil {
		return true
	}
	text := strings.ToLower(descriptor)

	if allow := normalize(g.lists.Allowlist()); len(allow) > 0 {
		for _, kw := range allow {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	}

	for _, kw := range normalize(g.lists.Denylist()) {
		if strings.Contains(text, kw) {
			return false
		}
	}
	return true
}

// TrackAllowed checks the track's title, author and URI.
func (g *Gate) TrackAllowed(t models.Track) bool {
	return g.IsAllowed(strings.Join([]string{t.Info.Title, t.Info.Author, t.Info.URI}, " "))
}

// Filter returns the tracks of result that pass the gate and how many were dropped.
func (g *Gate) Filter(result models.LoadResult) (models.LoadResult, int) {
	kept := make([]models.Track, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		if g.TrackAllowed(t) {
			kept = append(kept, t)
		}
	}
	dropped := len(result.Tracks) - len(kept)
	if dropped > 0 {
		g.logger.Debug("tracks blocked", "dropped", dropped, "kept", len(kept))
	}
	result.Tracks = kept
	return result, dropped
}

func normalize(keywords []string) []string {
	out := keywords[:0:0]
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// URLAllowed reports whether raw is an http(s) URL on a supported domain.
func URLAllowed(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return models.DomainSupported(u.Hostname())
}
