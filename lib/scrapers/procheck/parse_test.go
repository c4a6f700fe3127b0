package procheck

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func docFromString(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractFormFields(t *testing.T) {
	doc := docFromString(t, `
		<html><body><form>
			<input type="hidden" name="__VIEWSTATE" value="dDwx">
			<input type="hidden" name="__EVENTVALIDATION" value="ev1">
			<input type="text" name="TextBox2" value="">
			<input name="NoType" value="implicit-text">
			<input type="submit" name="Button1" value="Search by Person">
			<input type="checkbox" name="Checked" value="on" checked>
			<input type="checkbox" name="Unchecked" value="on">
			<input type="radio" name="Mode" value="a">
			<input type="radio" name="Mode" value="b" checked>
			<input type="text" value="nameless">
			<select name="Explicit">
				<option value="one">one</option>
				<option value="two" selected>two</option>
			</select>
			<select name="Implicit">
				<option value="first">first</option>
				<option value="second">second</option>
			</select>
		</form></body></html>`)

	fields := ExtractFormFields(doc)

	require.Equal(t, "dDwx", fields["__VIEWSTATE"])
	require.Equal(t, "ev1", fields["__EVENTVALIDATION"])
	require.Equal(t, "", fields["TextBox2"])
	require.Equal(t, "implicit-text", fields["NoType"])
	require.Equal(t, "on", fields["Checked"])
	require.Equal(t, "b", fields["Mode"])
	// dropdowns with no explicit selection submit their first option
	require.Equal(t, "two", fields["Explicit"])
	require.Equal(t, "first", fields["Implicit"])

	_, ok := fields["Button1"]
	require.False(t, ok, "submit buttons are set by the caller, not echoed")
	_, ok = fields["Unchecked"]
	require.False(t, ok)
}

func TestFormStateCloneIsIndependent(t *testing.T) {
	base := FormState{"__VIEWSTATE": "a"}
	clone := base.Clone()
	clone["__VIEWSTATE"] = "b"
	clone["Button3"] = "Search"

	require.Equal(t, "a", base["__VIEWSTATE"])
	_, ok := base["Button3"]
	require.False(t, ok)
}

const resultsPage = `
<html><body>
<div id="report-wrapper">
	<table>
		<tr><td colspan="11"><div>Public Search Results</div></td></tr>
		<tr>
			<td><div>Status</div></td>
			<td><div>Licence History</div></td>
			<td><div>First Name</div></td>
			<td><div>Middle Name</div></td>
			<td><div>Last Name</div></td>
			<td><div>AKA</div></td>
			<td><div>Brokerage</div></td>
			<td><div>City</div></td>
			<td><div>Class</div></td>
			<td><div>Type</div></td>
			<td><div>Sector</div></td>
		</tr>
		<tr>
			<td>Licensed</td>
			<td><a href="#" onclick="InvokeReportAction('Drillthrough','8a9fe3|0|iT0','');return false;">View</a></td>
			<td>Alice</td><td>May</td><td>Anderson</td><td></td>
			<td>Acme Realty Ltd.</td><td>CALGARY</td><td>1</td><td>P</td>
			<td>Residential</td>
		</tr>
		<tr>
			<td>Licence Cancelled</td>
			<td><a href="#" onclick="InvokeReportAction('Drillthrough','7b2c44|0|iT1','');return false;">View</a></td>
			<td>Bob</td><td></td><td>Brown</td><td></td>
			<td>Brown &amp; Co.</td><td>edmonton</td><td>1</td><td>P</td>
			<td>Commercial</td>
		</tr>
		<tr>
			<td>Expired</td>
			<td><a href="#" onclick="InvokeReportAction('Drillthrough','ffff00|0|iT2','');return false;">View</a></td>
			<td>Carol</td><td></td><td>Clark</td><td></td>
			<td>Clark Homes</td><td>Red Deer</td><td>1</td><td>P</td>
			<td>Residential</td>
		</tr>
		<tr><td colspan="11">1 2 3</td></tr>
	</table>
</div>
</body></html>`

func TestParseResults(t *testing.T) {
	agents := ParseResults(docFromString(t, resultsPage))
	require.Len(t, agents, 2, "unrecognized statuses and chrome rows are skipped")

	alice := agents[0]
	require.Equal(t, "8a9fe3|0|iT0", alice.DrillID)
	require.Equal(t, "Alice", alice.FirstName)
	require.Equal(t, "May", alice.MiddleName)
	require.Equal(t, "Anderson", alice.LastName)
	require.Equal(t, "Alice May Anderson", alice.FullName)
	require.Equal(t, "Licensed", alice.Status)
	require.Equal(t, "Acme Realty Ltd.", alice.Brokerage)
	require.Equal(t, "Calgary", alice.City)
	require.Equal(t, "Residential", alice.Sector)

	bob := agents[1]
	require.Equal(t, "Licence Cancelled", bob.Status)
	require.Equal(t, "Bob Brown", bob.FullName)
	require.Equal(t, "Edmonton", bob.City)
}

func TestParseResultsNoLandmark(t *testing.T) {
	agents := ParseResults(docFromString(t, `
		<html><body><div>No records matched your search.</div></body></html>`))
	require.Empty(t, agents)
}

func TestClassify(t *testing.T) {
	classifier := DefaultClassifier()

	testCases := []struct {
		html     string
		expected Category
	}{
		{"<html>Runtime Error</html>", CategoryServerError},
		{"<html>Server Error in '/' Application.</html>", CategoryServerError},
		{"<html>Invalid postback or callback argument.</html>", CategoryDesync},
		{"<html>Event validation failed</html>", CategoryDesync},
		{"<html>Too Many Requests</html>", CategoryRateLimited},
		{"<html>please solve this CAPTCHA</html>", CategoryRateLimited},
		{"<html>your IP has been blocked</html>", CategoryRateLimited},
		{resultsPage, CategoryNone},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, classifier.Classify(test.html), test.html)
	}
}

func TestIsErrorResponse(t *testing.T) {
	require.True(t, IsErrorResponse("<html><h1>Runtime Error</h1></html>"))
	require.False(t, IsErrorResponse(resultsPage))
}
