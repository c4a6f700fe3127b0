package sweep

import (
	"fmt"
	"regexp"
	"strings"

	"procheck-sweep/lib/htmlutil"
	"procheck-sweep/lib/scrapers/procheck"
)

// Key is the identity of a record across queries: the drill id when the
// row carried one, otherwise a first|last|brokerage composite.
func Key(a procheck.Agent) string {
	if a.DrillID != "" {
		return a.DrillID
	}
	return fmt.Sprintf("%s|%s|%s", a.FirstName, a.LastName, a.Brokerage)
}

// QualityScore rates a lead 0-100 by how contactable it is:
// email +40, phone +30, brokerage +20, city +10.
func QualityScore(a procheck.Agent) int {
	score := 0
	if a.Email != "" {
		score += 40
	}
	if a.Phone != "" {
		score += 30
	}
	if a.Brokerage != "" {
		score += 20
	}
	if a.City != "" {
		score += 10
	}
	return score
}

var emailShape = regexp.MustCompile(`^[\w\.-]+@[\w\.-]+\.\w+$`)

func ValidEmail(email string) bool {
	return email != "" && emailShape.MatchString(email)
}

var cityAbbreviations = []struct{ abbr, full string }{
	{"Calg", "Calgary"},
	{"Edm", "Edmonton"},
	{"Ft", "Fort"},
}

// NormalizeCity title-cases a city name and expands the abbreviations the
// registry's data entry tends to use.
func NormalizeCity(city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return ""
	}
	city = htmlutil.Title(city)
	for _, r := range cityAbbreviations {
		if strings.HasPrefix(city, r.abbr) && !strings.HasPrefix(city, r.full) {
			city = r.full + city[len(r.abbr):]
			break
		}
	}
	return city
}
