package bottleneck

import (
	"fmt"
	"strings"
	"unicode"

	prose "github.com/jdkato/prose/v2"

	"github.com/adaptlearn/backend/internal/storage/models"
)

// PatternClassifier maps an erred item's content to a finite pattern label.
// Labels below the occurrence floor are discarded by the detector, so a
// classifier can be loose about rare shapes. An empty label drops the item
// from pattern counting.
type PatternClassifier func(c models.Component, content string) string

var morphSuffixes = []string{
	"tion", "ment", "ness", "able", "ible", "ous", "ing", "est",
	"ed", "er", "ly", "es", "s",
}

// ClassifyError is the default content heuristic. It is deliberately crude:
// the goal is grouping recurring error shapes, not linguistic analysis.
func ClassifyError(c models.Component, content string) string {
	content = strings.ToLower(strings.TrimSpace(content))
	if content == "" {
		return ""
	}

	switch c {
	case models.Morphology:
		for _, suffix := range morphSuffixes {
			if strings.HasSuffix(content, suffix) && len(content) > len(suffix)+1 {
				return fmt.Sprintf("suffix_-%s", suffix)
			}
		}
		return "irregular_form"

	case models.Lexicon:
		if n := tokenCount(content); n > 1 {
			return "multiword_expression"
		}
		switch {
		case len(content) < 5:
			return "short_word"
		case len(content) <= 8:
			return "medium_word"
		default:
			return "long_word"
		}

	case models.Phonology:
		if startsWithCluster(content) {
			return "initial_cluster"
		}
		if vowelGroups(content) >= 3 {
			return "multisyllabic"
		}
		return "simple_syllable"

	case models.Syntax:
		if tokenCount(content) > 6 {
			return "long_construction"
		}
		return "short_construction"

	case models.Pragmatics:
		if strings.Contains(content, "?") {
			return "question_form"
		}
		if tokenCount(content) > 4 {
			return "extended_discourse"
		}
		return "formulaic_phrase"
	}

	return ""
}

// tokenCount tokenizes with prose so hyphenation and clitics count the way a
// learner sees them, falling back to whitespace fields when the tokenizer
// rejects the input.
func tokenCount(content string) int {
	doc, err := prose.NewDocument(content,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return len(strings.Fields(content))
	}
	return len(doc.Tokens())
}

func startsWithCluster(content string) bool {
	consonants := 0
	for _, r := range content {
		if !unicode.IsLetter(r) {
			break
		}
		if isVowel(r) {
			break
		}
		consonants++
	}
	return consonants >= 2
}

func vowelGroups(content string) int {
	groups := 0
	inGroup := false
	for _, r := range content {
		if isVowel(r) {
			if !inGroup {
				groups++
				inGroup = true
			}
		} else {
			inGroup = false
		}
	}
	return groups
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
