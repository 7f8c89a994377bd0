package utils

import (
	"strings"
	"unicode"
)

// SanitizeString removes control characters (except newlines and tabs) and trims whitespace
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// TruncateString truncates a string to maxLen runes
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SplitTags splits a comma separated tag list, dropping blanks and duplicates
func SplitTags(s string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// NormalizeTags trims tags and drops blanks and duplicates. The result is never nil.
func NormalizeTags(tags []string) []string {
	return SplitTags(strings.Join(tags, ","))
}
