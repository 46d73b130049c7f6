// Package matching decides when two tracks from different platforms are the same song and resolves missing
// tracks on a destination platform.
//
// The canonical key of a track is its ISRC when one is present, otherwise the normalized title and artist joined
// by "|". Normalization folds case, strips combining accents and collapses whitespace, so "Café" and "cafe" match.
// Matching is a heuristic: remasters with new ISRCs or differently spelled artists can still miss.
package matching

import (
	"strings"
	"unicode"

	"github.com/desertthunder/tunesync/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const keySeparator = "|"

// Normalize folds case and accents, trims, and collapses internal whitespace.
func Normalize(s string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// NormalizeISRC uppercases and trims an ISRC; hyphenated forms are compacted.
func NormalizeISRC(isrc string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(isrc), "-", ""))
}

// NameKey returns normalize(title)|normalize(artist).
func NameKey(title, artist string) string {
	return Normalize(title) + keySeparator + Normalize(artist)
}

// CanonicalKey returns the ISRC when present, otherwise the name key.
func CanonicalKey(t models.Track) string {
	if isrc := NormalizeISRC(t.ISRC); isrc != "" {
		return isrc
	}
	return NameKey(t.Title, t.Artist)
}

// Index is the key set of a destination playlist.
type Index struct {
	isrcs       map[string]struct{}
	names       map[string]struct{}
	namesNoISRC map[string]struct{}
	refs        map[string]struct{}
}

// NewIndex builds an [Index] over tracks.
func NewIndex(tracks []models.Track) *Index {
	ix := &Index{
		isrcs:       make(map[string]struct{}, len(tracks)),
		names:       make(map[string]struct{}, len(tracks)),
		namesNoISRC: make(map[string]struct{}),
		refs:        make(map[string]struct{}, len(tracks)*2),
	}
	for _, t := range tracks {
		ix.Add(t)
	}
	return ix
}

// Add records t as present.
func (ix *Index) Add(t models.Track) {
	name := NameKey(t.Title, t.Artist)
	ix.names[name] = struct{}{}
	if isrc := NormalizeISRC(t.ISRC); isrc != "" {
		ix.isrcs[isrc] = struct{}{}
	} else {
		ix.namesNoISRC[name] = struct{}{}
	}
	if t.NativeID != "" {
		ix.refs[t.NativeID] = struct{}{}
	}
	if t.URI != "" {
		ix.refs[t.URI] = struct{}{}
	}
}

// Contains reports whether a track with t's canonical key is present.
//
// When both sides carry an ISRC only the ISRC is compared. When either side lacks one the comparison falls back
// to the name key.
func (ix *Index) Contains(t models.Track) bool {
	if isrc := NormalizeISRC(t.ISRC); isrc != "" {
		if _, ok := ix.isrcs[isrc]; ok {
			return true
		}
		_, ok := ix.namesNoISRC[NameKey(t.Title, t.Artist)]
		return ok
	}
	_, ok := ix.names[NameKey(t.Title, t.Artist)]
	return ok
}

// HasRef reports whether a native id or URI is present.
func (ix *Index) HasRef(ref string) bool {
	_, ok := ix.refs[ref]
	return ok
}

// Len returns the number of distinct name keys indexed.
func (ix *Index) Len() int {
	return len(ix.names)
}

// Missing returns the source tracks absent from ix, deduplicated by canonical key and in source order.
func Missing(source []models.Track, ix *Index) []models.Track {
	seen := make(map[string]struct{}, len(source))
	var out []models.Track
	for _, t := range source {
		key := CanonicalKey(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if ix.Contains(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
