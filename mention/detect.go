package mention

import (
	"strings"
)

// Detect scans response text for occurrences of tracked names. It is a
// pure function: same inputs always produce the same mentions in the
// same order.
//
// The text is split into sentence units. Each unit containing a tracked
// name (case-insensitive) yields one mention per name it contains, with
// a context window of the previous, current, and next unit. Other
// tracked names found in that window are recorded as cross-references,
// so a unit naming both the brand and a competitor yields two mentions
// that each list the other.
func Detect(responseText string, trackedNames []string) []Mention {
	units := splitUnits(responseText)
	if len(units) == 0 {
		return nil
	}

	var mentions []Mention
	position := 0

	for i, unit := range units {
		unitLower := strings.ToLower(unit)

		context := contextWindow(units, i)
		contextLower := strings.ToLower(context)

		for _, name := range trackedNames {
			if name == "" || !strings.Contains(unitLower, strings.ToLower(name)) {
				continue
			}

			var competitors []string
			for _, other := range trackedNames {
				if other == "" || strings.EqualFold(other, name) {
					continue
				}
				if strings.Contains(contextLower, strings.ToLower(other)) {
					competitors = append(competitors, other)
				}
			}

			mentions = append(mentions, Mention{
				MatchedName: name,
				Type:        classify(contextLower),
				Sentence:    unit,
				Context:     context,
				Competitors: competitors,
				Features:    extractFeatures(contextLower),
				Position:    position,
			})
			position++
		}
	}

	return mentions
}

// splitUnits breaks text into sentence-like units at terminal punctuation.
// Empty units are dropped; text without terminal punctuation is one unit.
func splitUnits(text string) []string {
	var units []string
	var current strings.Builder

	flush := func() {
		unit := strings.TrimSpace(current.String())
		if unit != "" {
			units = append(units, unit)
		}
		current.Reset()
	}

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()

	return units
}

// contextWindow concatenates the previous, current, and next unit
func contextWindow(units []string, i int) string {
	var parts []string
	if i > 0 {
		parts = append(parts, units[i-1])
	}
	parts = append(parts, units[i])
	if i+1 < len(units) {
		parts = append(parts, units[i+1])
	}
	return strings.Join(parts, " ")
}

// classify determines the mention type from its context. Comparison
// framing wins over feature framing when both are present.
func classify(contextLower string) Type {
	for _, marker := range comparisonMarkers {
		if containsWord(contextLower, marker) {
			return TypeCompetitive
		}
	}
	for _, marker := range featureMarkers {
		if containsWord(contextLower, marker) {
			return TypeFeature
		}
	}
	return TypeDirect
}

// extractFeatures returns the deduplicated feature keywords present in
// the context, in vocabulary order
func extractFeatures(contextLower string) []string {
	var features []string
	for _, keyword := range featureVocabulary {
		if containsWord(contextLower, keyword) {
			features = append(features, keyword)
		}
	}
	return features
}

// containsWord reports whether needle occurs in haystack bounded by
// non-letter characters, so "api" does not match inside "rapid".
// Multi-word needles fall back to substring matching.
func containsWord(haystack, needle string) bool {
	if strings.ContainsRune(needle, ' ') {
		return strings.Contains(haystack, needle)
	}

	idx := 0
	for {
		pos := strings.Index(haystack[idx:], needle)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(needle)

		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
