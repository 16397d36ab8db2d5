package doctools

import (
	"sort"
	"strings"
	"unicode"
)

type lineMatch struct {
	Line int
	Text string
}

// keywordMatches returns the lines containing query.
func keywordMatches(lines []string, query string, caseSensitive bool, limit int) []lineMatch {
	if !caseSensitive {
		query = strings.ToLower(query)
	}
	var matches []lineMatch
	for i, line := range lines {
		hay := line
		if !caseSensitive {
			hay = strings.ToLower(line)
		}
		if strings.Contains(hay, query) {
			matches = append(matches, lineMatch{Line: i + 1, Text: line})
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	return matches
}

// passage is a run of non-blank lines.
type passage struct {
	Start, End int
	Text       string
	Score      float64
}

func passages(lines []string) []passage {
	var out []passage
	start := 0
	flush := func(end int) {
		if start > 0 {
			out = append(out, passage{Start: start, End: end, Text: joinLines(lines[start-1 : end])})
			start = 0
		}
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush(i)
			continue
		}
		if start == 0 {
			start = i + 1
		}
	}
	flush(len(lines))
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "to": true,
	"in": true, "on": true, "for": true, "is": true, "are": true, "with": true,
	"about": true, "this": true, "that": true, "it": true, "or": true,
}

func tokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if !stopwords[f] {
			set[f] = true
		}
	}
	return set
}

// rankPassages scores passages by the fraction of query terms they contain
// and returns the best topK with a positive score.
func rankPassages(lines []string, query string, topK int) []passage {
	terms := tokens(query)
	if len(terms) == 0 {
		return nil
	}
	var ranked []passage
	for _, p := range passages(lines) {
		words := tokens(p.Text)
		hits := 0
		for t := range terms {
			if words[t] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		p.Score = float64(hits) / float64(len(terms))
		ranked = append(ranked, p)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}
