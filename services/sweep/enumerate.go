package sweep

import "strings"

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// Prefixes generates the query space in a fixed, restartable order: each
// letter on its own, immediately followed by its 26 two-letter
// refinements. The portal truncates result sets per query, so the
// two-letter pass catches the overflow of common surname prefixes. A nil
// or empty letters slice means the full A-Z alphabet.
func Prefixes(letters []string) []string {
	if len(letters) == 0 {
		letters = strings.Split(strings.ToUpper(alphabet), "")
	}

	var prefixes []string
	for _, letter := range letters {
		letter = strings.ToUpper(letter)
		prefixes = append(prefixes, letter)
		for _, second := range alphabet {
			prefixes = append(prefixes, letter+string(second))
		}
	}
	return prefixes
}
