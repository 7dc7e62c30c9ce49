package metadata

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var enclosedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*\{[^{]*\}`),
	regexp.MustCompile(`\s*\([^(]*\)`),
	regexp.MustCompile(`\s*\[[^\[]*\]`),
}

var titleReplacer = strings.NewReplacer(
	"=", " ", "-", " ", ":", " ", "|", " ", "~", " ", "+", " ",
	"]", " ", "[", " ", ",", " ", ")", " ", "(", " ",
)

// RemoveEnclosed drops bracketed segments such as "[Circle]" or "(Event)"
// and collapses whitespace.
func RemoveEnclosed(s string) string {
	for _, re := range enclosedPatterns {
		s = re.ReplaceAllString(s, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// CleanTitle normalizes a title for comparison: enclosed segments removed,
// punctuation turned into spaces, lower-cased.
func CleanTitle(title string, removeEnclosed bool) string {
	if removeEnclosed {
		title = RemoveEnclosed(title)
	}
	title = titleReplacer.Replace(strings.ToLower(title))
	return strings.Join(strings.Fields(title), " ")
}

// SplitTag separates "namespace:tag" into its parts. namespace is empty for
// plain tags. The last colon delimits the namespace.
func SplitTag(tag string) (name, namespace string) {
	i := strings.LastIndex(tag, ":")
	if i < 0 {
		return tag, ""
	}
	return tag[i+1:], tag[:i]
}

// SplitCSV splits comma separated values, trimming blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinCSV is the inverse of SplitCSV.
func JoinCSV(values []string) string {
	return strings.Join(values, ", ")
}

// Similarity is the sequence-matcher ratio of two strings, from 0 for
// nothing in common to 1 for equal strings.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
