package models

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// QueryType classifies a normalized query.
type QueryType int

const (
	QueryInvalid QueryType = iota
	QuerySearch
	QueryURL
	QueryProviderURI
	QueryLocal
)

func (t QueryType) String() string {
	switch t {
	case QuerySearch:
		return "search"
	case QueryURL:
		return "url"
	case QueryProviderURI:
		return "provider-uri"
	case QueryLocal:
		return "local"
	default:
		return "invalid"
	}
}

// Provider URI kinds.
const (
	KindTrack    = "track"
	KindAlbum    = "album"
	KindPlaylist = "playlist"
)

// SearchPrefixes are the search-source prefixes understood by the load node.
var SearchPrefixes = []string{"ytsearch:", "ytmsearch:", "scsearch:"}

// SupportedDomains lists the hosts whose URLs can be loaded. Subdomains match.
var SupportedDomains = []string{
	"youtube.com",
	"youtu.be",
	"soundcloud.com",
	"bandcamp.com",
	"vimeo.com",
	"twitch.tv",
	"spotify.com",
	"localtracks",
}

var (
	spotifyURIPattern = regexp.MustCompile(`^spotify:(track|album|playlist):([A-Za-z0-9]+)$`)
	spotifyURLPath    = regexp.MustCompile(`^/(?:intl-[a-z]{2}(?:-[a-z]{2})?/)?(?:user/[^/]+/)?(track|album|playlist)/([A-Za-z0-9]+)`)
	youtubeVideoID    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// Query is a classified, canonicalized user query.
type Query struct {
	Raw       string
	Type      QueryType
	Canonical string
	// Kind and ID are set for provider URIs.
	Kind string
	ID   string
}

func (q Query) Valid() bool         { return q.Type != QueryInvalid }
func (q Query) IsLocal() bool       { return q.Type == QueryLocal }
func (q Query) IsProviderURI() bool { return q.Type == QueryProviderURI }

// IsSingleTrack reports whether q names exactly one provider track.
func (q Query) IsSingleTrack() bool {
	return q.Type == QueryProviderURI && q.Kind == KindTrack
}

// CacheKey is the key the query is stored under in the load table.
func (q Query) CacheKey() string { return q.Canonical }

func (q Query) String() string { return q.Canonical }

// NormalizeQuery classifies raw input. It never fails: unresolvable input yields a [QueryInvalid] query.
func NormalizeQuery(raw string) Query {
	q := Query{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return q
	}
	lower := strings.ToLower(s)

	for _, prefix := range []string{"localtrack:", "local:"} {
		if strings.HasPrefix(lower, prefix) {
			path := strings.TrimSpace(s[len(prefix):])
			if path == "" {
				return q
			}
			q.Type, q.Canonical = QueryLocal, "localtrack:"+path
			return q
		}
	}

	if m := spotifyURIPattern.FindStringSubmatch(s); m != nil {
		return providerQuery(q, m[1], m[2])
	}

	for _, prefix := range SearchPrefixes {
		if strings.HasPrefix(lower, prefix) {
			text := collapse(s[len(prefix):])
			if text == "" {
				return q
			}
			q.Type, q.Canonical = QuerySearch, prefix+text
			return q
		}
	}

	if looksLikeURL(lower) {
		return urlQuery(q, s)
	}

	q.Type, q.Canonical = QuerySearch, "ytsearch:"+collapse(s)
	return q
}

func providerQuery(q Query, kind, id string) Query {
	q.Type = QueryProviderURI
	q.Kind, q.ID = kind, id
	q.Canonical = "spotify:" + kind + ":" + id
	return q
}

func looksLikeURL(lower string) bool {
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "www.")
}

func urlQuery(q Query, s string) Query {
	if strings.HasPrefix(strings.ToLower(s), "www.") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return q
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if !DomainSupported(host) {
		return q
	}

	switch {
	case host == "open.spotify.com":
		if m := spotifyURLPath.FindStringSubmatch(u.Path); m != nil {
			return providerQuery(q, m[1], m[2])
		}
		return q
	case host == "youtu.be":
		id := strings.Trim(u.Path, "/")
		if !youtubeVideoID.MatchString(id) {
			return q
		}
		q.Type, q.Canonical = QueryURL, "https://www.youtube.com/watch?v="+id
		return q
	case host == "youtube.com" || host == "music.youtube.com" || host == "m.youtube.com":
		values := u.Query()
		if list := values.Get("list"); list != "" && (u.Path == "/playlist" || values.Get("v") == "") {
			q.Type, q.Canonical = QueryURL, "https://www.youtube.com/playlist?list="+list
			return q
		}
		if v := values.Get("v"); youtubeVideoID.MatchString(v) {
			q.Type, q.Canonical = QueryURL, "https://www.youtube.com/watch?v="+v
			return q
		}
	}

	u.Fragment = ""
	q.Type, q.Canonical = QueryURL, u.String()
	return q
}

// DomainSupported reports whether host, or a parent domain of it, is in [SupportedDomains].
func DomainSupported(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return slices.ContainsFunc(SupportedDomains, func(d string) bool {
		return host == d || strings.HasSuffix(host, "."+d)
	})
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
