// Package songkey builds the normalized keys the caching layers agree on:
// normalized search queries, track identity keys, and the namespaced cache
// key strings used by the local cache tier.
package songkey

import (
	"regexp"
	"strings"
)

// Cache key namespaces. Every locally cached value lives under one of these
// fixed prefixes so mirrors can be scanned and cleared per namespace.
const (
	prefixSearch  = "search:"
	prefixTrack   = "track:"
	prefixRelated = "related:"
	prefixArtist  = "artist:"
)

// Patterns stripped from titles before identity or search comparison.
// Stream-site rips carry suffixes like "(Official Video)" or "[HD]" that
// would otherwise split one song across several identities.
var titleNoisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[(\[]official\s+(music\s+|lyric\s+)?(video|audio|visuali[sz]er)[)\]]`),
	regexp.MustCompile(`(?i)\s*[(\[]lyrics?[)\]]`),
	regexp.MustCompile(`(?i)\s*[(\[]visuali[sz]er[)\]]`),
	regexp.MustCompile(`(?i)\s*[(\[]audio[)\]]`),
	regexp.MustCompile(`(?i)\s*[(\[](hd|hq|4k)[)\]]`),
	regexp.MustCompile(`(?i)\s*[(\[](explicit|clean)[)\]]`),
	regexp.MustCompile(`(?i)\s*[(\[]\d{4}\s+remaster(ed)?[)\]]`),
	regexp.MustCompile(`(?i)\s*[(\[]remaster(ed)?(\s+\d{4})?[)\]]`),
}

var featuringPattern = regexp.MustCompile(`(?i)\s*[(\[]?\s*(?:feat\.?|ft\.?|featuring)\s+[^)\]]+[)\]]?`)

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Normalize lowercases s, replaces punctuation with spaces, and collapses
// runs of whitespace. Two queries that normalize equal are treated as the
// same search.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// CleanTitle strips stream-site noise and featuring clauses from a raw
// title, leaving the part that identifies the song.
func CleanTitle(title string) string {
	for _, p := range titleNoisePatterns {
		title = p.ReplaceAllString(title, "")
	}
	title = featuringPattern.ReplaceAllString(title, "")
	title = strings.Trim(title, " -–—")
	return strings.TrimSpace(title)
}

// Identity returns the deduplication key for a track: the ISRC when one is
// known, otherwise the normalized (title, artist) pair. The durable store
// enforces uniqueness on this value.
func Identity(isrc, title, artist string) string {
	if isrc = strings.TrimSpace(isrc); isrc != "" {
		return "isrc:" + strings.ToUpper(isrc)
	}
	return "ta:" + Normalize(CleanTitle(title)) + "|" + Normalize(artist)
}

// Search returns the local cache key for a search query.
func Search(query string) string {
	return prefixSearch + Normalize(query)
}

// Track returns the local cache key for a track ID.
func Track(id string) string {
	return prefixTrack + id
}

// Related returns the local cache key for a track's related-track list.
func Related(id string) string {
	return prefixRelated + id
}

// Artist returns the local cache key for an artist snapshot.
func Artist(name string) string {
	return prefixArtist + Normalize(name)
}
