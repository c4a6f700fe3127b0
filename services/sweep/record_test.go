package sweep

import (
	"testing"

	"procheck-sweep/lib/scrapers/procheck"

	"github.com/stretchr/testify/require"
)

func TestKeyPrefersDrillID(t *testing.T) {
	withID := procheck.Agent{DrillID: "8a9fe3|0|iT0", FirstName: "Alice", LastName: "Anderson"}
	require.Equal(t, "8a9fe3|0|iT0", Key(withID))

	withoutID := procheck.Agent{FirstName: "Alice", LastName: "Anderson", Brokerage: "Acme Realty"}
	require.Equal(t, "Alice|Anderson|Acme Realty", Key(withoutID))
}

func TestQualityScore(t *testing.T) {
	testCases := []struct {
		name  string
		agent procheck.Agent
		score int
	}{
		{"nothing", procheck.Agent{}, 0},
		{"email only", procheck.Agent{Email: "a@b.ca"}, 40},
		{"phone only", procheck.Agent{Phone: "(403) 555-1234"}, 30},
		{"brokerage and city", procheck.Agent{Brokerage: "Acme", City: "Calgary"}, 30},
		{"everything", procheck.Agent{
			Email: "a@b.ca", Phone: "(403) 555-1234",
			Brokerage: "Acme", City: "Calgary",
		}, 100},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.score, QualityScore(test.agent))
		})
	}
}

func TestValidEmail(t *testing.T) {
	require.True(t, ValidEmail("alice.anderson@acme-realty.ca"))
	require.False(t, ValidEmail(""))
	require.False(t, ValidEmail("not an email"))
	require.False(t, ValidEmail("a@b@c.ca"))
}

func TestNormalizeCity(t *testing.T) {
	testCases := []struct{ in, out string }{
		{"CALGARY", "Calgary"},
		{"calg", "Calgary"},
		{"EDM", "Edmonton"},
		{"Ft McMurray", "Fort Mcmurray"},
		{"Calgary", "Calgary"},     // already expanded, must not double-expand
		{"Edmonton", "Edmonton"},
		{"  red deer ", "Red Deer"},
		{"", ""},
	}
	for _, test := range testCases {
		require.Equal(t, test.out, NormalizeCity(test.in), "input %q", test.in)
	}
}

func TestPrefixesCoverLetterThenRefinements(t *testing.T) {
	prefixes := Prefixes([]string{"A"})
	require.Len(t, prefixes, 27)
	require.Equal(t, "A", prefixes[0])
	require.Equal(t, "Aa", prefixes[1])
	require.Equal(t, "Az", prefixes[26])
}

func TestPrefixesDefaultAlphabet(t *testing.T) {
	prefixes := Prefixes(nil)
	require.Len(t, prefixes, 26*27)
	require.Equal(t, "A", prefixes[0])
	require.Equal(t, "B", prefixes[27])
	require.Equal(t, "Zz", prefixes[len(prefixes)-1])

	// the order is deterministic so interrupted runs resume cleanly
	require.Equal(t, prefixes, Prefixes(nil))
}

func TestPrefixesUppercasesInput(t *testing.T) {
	prefixes := Prefixes([]string{"m"})
	require.Equal(t, "M", prefixes[0])
	require.Equal(t, "Ma", prefixes[1])
}

func TestDeduplicateKeepsFirstOccurrence(t *testing.T) {
	agents := []procheck.Agent{
		{DrillID: "id-1", FirstName: "Alice", City: "Calgary"},
		{DrillID: "id-2", FirstName: "Bob"},
		{DrillID: "id-1", FirstName: "Alice", City: "Edmonton"},
		{FirstName: "Carol", LastName: "Chan", Brokerage: "Acme"},
		{FirstName: "Carol", LastName: "Chan", Brokerage: "Acme"},
	}

	unique := Deduplicate(agents)
	require.Len(t, unique, 3)
	require.Equal(t, "Calgary", unique[0].City)

	// idempotent on already-unique input
	require.Equal(t, unique, Deduplicate(unique))
}
