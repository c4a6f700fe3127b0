package procheck

import (
	"fmt"
	"regexp"
)

// ContactInfo is what the deep phase is after. Both fields stay empty
// when the detail page carries neither.
type ContactInfo struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

var (
	mailtoRegex = regexp.MustCompile(`mailto:([\w\.-]+@[\w\.-]+\.\w+)`)
	emailRegex  = regexp.MustCompile(`[\w\.-]+@[\w\.-]+\.\w+`)

	// ordered: the most explicit punctuation first, a bare ten-digit run
	// only as a last resort
	phoneRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\((\d{3})\)\s*(\d{3})[-.]\s*(\d{4})`),
		regexp.MustCompile(`(\d{3})[-.]\s*(\d{3})[-.]\s*(\d{4})`),
		regexp.MustCompile(`(\d{3})[\s.](\d{3})[\s.](\d{4})`),
		regexp.MustCompile(`(\d{10})`),
	}
)

// ParseContactInfo extracts contact data from a drillthrough detail page.
// A mailto link is authoritative for the email; free-text pattern matching
// is the fallback. The first phone pattern to match wins and its digits
// are normalized to (NNN) NNN-NNNN.
func ParseContactInfo(html string) ContactInfo {
	var info ContactInfo

	if match := mailtoRegex.FindStringSubmatch(html); match != nil {
		info.Email = match[1]
	} else if match := emailRegex.FindString(html); match != "" {
		info.Email = match
	}

	for _, re := range phoneRegexes {
		match := re.FindStringSubmatch(html)
		if match == nil {
			continue
		}
		groups := match[1:]
		if len(groups) == 3 {
			info.Phone = fmt.Sprintf("(%s) %s-%s", groups[0], groups[1], groups[2])
		} else if len(groups[0]) == 10 {
			num := groups[0]
			info.Phone = fmt.Sprintf("(%s) %s-%s", num[:3], num[3:6], num[6:])
		}
		break
	}

	return info
}
