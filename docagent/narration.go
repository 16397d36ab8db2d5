package docagent

import (
	"regexp"
	"strings"
)

// NarrationClassifier decides whether a model reply describes an edit
// instead of performing it.
type NarrationClassifier interface {
	IsNarratingNotActing(text string) bool
}

// DefaultNarrationMarkers are phrases that announce work without doing it.
var DefaultNarrationMarkers = []string{
	"i will now",
	"i'll now",
	"now i will",
	"i am going to",
	"i'm going to",
	"let me now",
	"i will insert",
	"i will add",
	"i will edit",
	"i will update",
	"i will delete",
	"i will remove",
	"proceeding to",
	"work in progress",
	"in progress",
}

// KeywordClassifier flags text containing any of its markers,
// case-insensitively.
type KeywordClassifier struct {
	markers []string
}

// NewKeywordClassifier creates a classifier. With no markers it uses
// DefaultNarrationMarkers.
func NewKeywordClassifier(markers ...string) *KeywordClassifier {
	if len(markers) == 0 {
		markers = DefaultNarrationMarkers
	}
	lower := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lower = append(lower, m)
		}
	}
	return &KeywordClassifier{markers: lower}
}

// IsNarratingNotActing implements NarrationClassifier.
func (k *KeywordClassifier) IsNarratingNotActing(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range k.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var imageRefPattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)[^)]*\)`)

// extractImageRefs returns the targets of markdown image references in text.
func extractImageRefs(text string) []string {
	matches := imageRefPattern.FindAllStringSubmatch(text, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m[1])
	}
	return refs
}

// mentionsImage reports whether a reply refers to one of the pending image
// references without acting on it.
func mentionsImage(text string, pending []string) bool {
	if len(pending) == 0 {
		return false
	}
	if imageRefPattern.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, ref := range pending {
		if strings.Contains(text, ref) {
			return true
		}
	}
	return strings.Contains(lower, "image") || strings.Contains(lower, "figure")
}
