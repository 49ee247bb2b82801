package models

import "strings"

// CacheLevel is the set of active cache tiers, stored as a bitmask.
type CacheLevel uint8

const (
	LevelMetadata CacheLevel = 1 << iota
	LevelURL
	LevelLoad

	LevelNone CacheLevel = 0
	LevelAll             = LevelMetadata | LevelURL | LevelLoad
)

// CacheLevelFromInt converts a configured integer, dropping unknown bits.
func CacheLevelFromInt(n int) CacheLevel {
	return CacheLevel(n) & LevelAll
}

// Has reports whether every tier in other is enabled in l.
func (l CacheLevel) Has(other CacheLevel) bool {
	return l&other == other
}

// IsSubset reports whether l enables no tier that other lacks.
func (l CacheLevel) IsSubset(other CacheLevel) bool {
	return l&other == l
}

// Enables reports whether the tier backing table t is active.
func (l CacheLevel) Enables(t Table) bool {
	switch t {
	case TableLoad:
		return l.Has(LevelLoad)
	case TableURL:
		return l.Has(LevelURL)
	case TableMetadata:
		return l.Has(LevelMetadata)
	}
	return false
}

func (l CacheLevel) String() string {
	if l&LevelAll == LevelNone {
		return "none"
	}
	var parts []string
	if l.Has(LevelMetadata) {
		parts = append(parts, "metadata")
	}
	if l.Has(LevelURL) {
		parts = append(parts, "url")
	}
	if l.Has(LevelLoad) {
		parts = append(parts, "load")
	}
	return strings.Join(parts, "+")
}
