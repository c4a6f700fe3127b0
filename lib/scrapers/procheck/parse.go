package procheck

import (
	"regexp"
	"strings"

	"procheck-sweep/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Agent is one row of the public search results. DrillID is the opaque
// token the report viewer uses to render the row's detail sub-report; it
// is the primary identity of a record when present.
type Agent struct {
	DrillID    string `json:"drill_id"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	FullName   string `json:"name"`
	Status     string `json:"status"`
	Brokerage  string `json:"brokerage"`
	City       string `json:"city"`
	Sector     string `json:"sector"`
	AKA        string `json:"aka"`

	// filled by the deep phase
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	QualityScore int `json:"quality_score"`
}

// the results table header holds the "Licence History" column label,
// that text is the landmark the parser anchors on
const resultsLandmark = "Licence History"

var drillIDRegex = regexp.MustCompile(`InvokeReportAction\('Drillthrough','([^']+)'`)

func statusRecognized(status string) bool {
	if strings.Contains(status, "Licensed") {
		return true
	}
	lower := strings.ToLower(status)
	return strings.Contains(lower, "suspended") || strings.Contains(lower, "cancelled")
}

// ParseResults walks the results table of a search response. Rows follow
// the header row inside the same table; columns are positional. Rows whose
// status is not in the licensed/suspended/cancelled vocabulary are report
// chrome (grouping rows, pager rows) and are skipped. A document without
// the landmark yields no rows, which is how the portal renders an empty
// result set.
func ParseResults(doc *goquery.Document) []Agent {
	// the innermost div holding the landmark text: wrapper divs around
	// the whole report also contain it, so matches with a matching
	// descendant are discarded
	containsLandmark := func(_ int, div *goquery.Selection) bool {
		return strings.Contains(div.Text(), resultsLandmark)
	}
	landmark := doc.Find("div").
		FilterFunction(containsLandmark).
		FilterFunction(func(_ int, div *goquery.Selection) bool {
			return div.Find("div").FilterFunction(containsLandmark).Length() == 0
		}).
		First()
	if landmark.Length() == 0 {
		return nil
	}

	headerRow := landmark.Closest("tr")
	if headerRow.Length() == 0 {
		return nil
	}
	table := headerRow.Closest("table")
	if table.Length() == 0 {
		return nil
	}

	// direct child rows only, the report nests tables inside cells
	rows := table.ChildrenFiltered("tbody").ChildrenFiltered("tr")
	if rows.Length() == 0 {
		rows = table.ChildrenFiltered("tr")
	}

	headerNode := headerRow.Nodes[0]
	pastHeader := false
	var agents []Agent

	rows.Each(func(_ int, row *goquery.Selection) {
		if !pastHeader {
			pastHeader = row.Nodes[0] == headerNode
			return
		}

		cells := row.ChildrenFiltered("td")
		if cells.Length() < 10 {
			return
		}
		cellText := func(idx int) string {
			return htmlutil.CleanText(cells.Eq(idx).Text())
		}

		status := cellText(0)
		if !statusRecognized(status) {
			return
		}

		drillID := ""
		onclick := cells.Eq(1).Find("a").AttrOr("onclick", "")
		if match := drillIDRegex.FindStringSubmatch(onclick); match != nil {
			drillID = match[1]
		}

		agent := Agent{
			DrillID:    drillID,
			FirstName:  cellText(2),
			MiddleName: cellText(3),
			LastName:   cellText(4),
			AKA:        cellText(5),
			Status:     status,
			Brokerage:  cellText(6),
			City:       htmlutil.Title(cellText(7)),
			Sector:     cellText(10),
		}
		agent.FullName = joinName(agent.FirstName, agent.MiddleName, agent.LastName)
		agents = append(agents, agent)
	})

	return agents
}

func joinName(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
