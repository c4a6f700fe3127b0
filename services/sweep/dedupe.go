package sweep

import "procheck-sweep/lib/scrapers/procheck"

// Deduplicate merges records accumulated across overlapping prefix
// queries. First occurrence wins, keyed by drill id when present and by
// the name+brokerage composite otherwise. Applying it twice yields the
// same output.
func Deduplicate(agents []procheck.Agent) []procheck.Agent {
	seen := make(map[string]bool, len(agents))
	unique := make([]procheck.Agent, 0, len(agents))

	for _, agent := range agents {
		key := Key(agent)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, agent)
	}
	return unique
}
