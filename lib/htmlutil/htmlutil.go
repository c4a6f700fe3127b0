package htmlutil

import (
	"regexp"
	"strings"
	"unicode"
)

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// collapses inner runs of whitespace and strips non-printable characters,
// the usual cleanup for text pulled out of table cells.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// Title upper-cases the first letter of each word and lower-cases the
// rest, so CALGARY and calgary both come out as Calgary.
func Title(s string) string {
	out := strings.Builder{}
	out.Grow(len(s))
	startOfWord := true
	for _, c := range s {
		if unicode.IsLetter(c) {
			if startOfWord {
				out.WriteRune(unicode.ToUpper(c))
			} else {
				out.WriteRune(unicode.ToLower(c))
			}
			startOfWord = false
		} else {
			out.WriteRune(c)
			startOfWord = true
		}
	}
	return out.String()
}
