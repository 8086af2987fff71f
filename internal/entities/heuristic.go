package entities

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Heuristic is a dependency-free extractor used when no NER service is
// configured. It labels capitalized phrases and calendar expressions.
type Heuristic struct{}

var (
	datePattern = regexp.MustCompile(`(?i)\b(?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:,\s*\d{4})?|\d{4}-\d{2}-\d{2}|(?:19|20)\d{2})\b`)
	wordPattern = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'._-]*`)
)

var stopCaps = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "i": {}, "we": {}, "it": {}, "this": {}, "that": {},
	"who": {}, "what": {}, "where": {}, "when": {}, "why": {}, "how": {}, "is": {},
	"are": {}, "did": {}, "does": {}, "do": {}, "my": {}, "our": {}, "and": {}, "but": {},
	"today": {}, "yesterday": {}, "tomorrow": {}, "met": {}, "with": {}, "in": {}, "at": {},
}

// capitalizedLabels are the labels a capitalized phrase may carry, by
// preference when the caller does not reorder them.
var capitalizedLabels = map[string]struct{}{
	"person": {}, "organization": {}, "location": {}, "project": {}, "concept": {}, "technology": {},
}

func (Heuristic) Extract(_ context.Context, text string, labels []string, threshold float64) ([]Span, error) {
	var spans []Span
	if dateLabel := firstLabel(labels, "date"); dateLabel != "" && 0.6 >= threshold {
		for _, m := range datePattern.FindAllStringIndex(text, -1) {
			spans = append(spans, Span{Text: text[m[0]:m[1]], Start: m[0], End: m[1], Label: dateLabel, Score: 0.6})
		}
	}

	capLabel := ""
	for _, l := range labels {
		if _, ok := capitalizedLabels[l]; ok {
			capLabel = l
			break
		}
	}
	if capLabel == "" {
		return spans, nil
	}

	words := wordPattern.FindAllStringIndex(text, -1)
	for i := 0; i < len(words); {
		if !isCapitalized(text, words[i]) {
			i++
			continue
		}
		j := i
		for j+1 < len(words) && isCapitalized(text, words[j+1]) && onlySpaceBetween(text, words[j], words[j+1]) {
			j++
		}
		start, end := words[i][0], words[j][1]
		phrase := strings.TrimRight(text[start:end], ".")
		end = start + len(phrase)
		n := j - i + 1
		i = j + 1
		if n == 1 {
			if _, stop := stopCaps[strings.ToLower(phrase)]; stop {
				continue
			}
		}
		score := 0.4
		if n > 1 {
			score = 0.55
		}
		if score < threshold {
			continue
		}
		spans = append(spans, Span{Text: phrase, Start: start, End: end, Label: capLabel, Score: score})
	}
	return spans, nil
}

func firstLabel(labels []string, want string) string {
	for _, l := range labels {
		if l == want {
			return l
		}
	}
	return ""
}

func isCapitalized(text string, loc []int) bool {
	r, _ := utf8.DecodeRuneInString(text[loc[0]:loc[1]])
	return unicode.IsUpper(r)
}

func onlySpaceBetween(text string, a, b []int) bool {
	return strings.TrimSpace(text[a[1]:b[0]]) == ""
}
