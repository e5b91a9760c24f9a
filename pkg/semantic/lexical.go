package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Lexical is a dependency-free Provider backed by token overlap. Similarity
// is the Jaccard index over lowercased whitespace tokens; summaries and tags
// are simple lexical reductions. It stands in wherever no embedding or LLM
// backend is configured, and is the default provider in tests.
type Lexical struct {
	// MaxSummaryLen bounds summary output in runes.
	MaxSummaryLen int

	// MaxTags bounds the tag list.
	MaxTags int
}

// NewLexical returns a lexical provider with default bounds.
func NewLexical() *Lexical {
	return &Lexical{MaxSummaryLen: 280, MaxTags: 8}
}

// Similarity returns the Jaccard index of the two token sets.
func (l *Lexical) Similarity(_ context.Context, a, b string) (float64, error) {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union), nil
}

// Summarize joins the inputs and truncates to the configured bound.
func (l *Lexical) Summarize(_ context.Context, texts []string) (string, error) {
	var nonEmpty []string
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(t))
		}
	}
	if len(nonEmpty) == 0 {
		return "", nil
	}
	var s string
	if len(nonEmpty) == 1 {
		s = nonEmpty[0]
	} else {
		s = fmt.Sprintf("%s (consolidated from %d related memories)",
			strings.Join(nonEmpty[:min(3, len(nonEmpty))], "; "), len(nonEmpty))
	}
	if runes := []rune(s); len(runes) > l.MaxSummaryLen {
		s = string(runes[:l.MaxSummaryLen])
	}
	return s, nil
}

// Tagify returns the most frequent tokens of the text, longest first on ties.
func (l *Lexical) Tagify(_ context.Context, text string) ([]string, error) {
	counts := map[string]int{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) < 3 {
			continue
		}
		counts[tok]++
	}
	tags := make([]string, 0, len(counts))
	for tok := range counts {
		tags = append(tags, tok)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		if len(tags[i]) != len(tags[j]) {
			return len(tags[i]) > len(tags[j])
		}
		return tags[i] < tags[j]
	})
	if len(tags) > l.MaxTags {
		tags = tags[:l.MaxTags]
	}
	return tags, nil
}

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok != "" {
			out[tok] = struct{}{}
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
