package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"procheck-sweep/lib/retrier"
	"procheck-sweep/lib/scrapers/procheck"
	"procheck-sweep/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// fakeSession scripts per-prefix outcomes so the orchestrator's retry,
// skip and failure-absorption behavior can be exercised offline.
type fakeSession struct {
	results map[string][]procheck.Agent
	// prefixes that fail with a transient error on every attempt
	broken map[string]bool
	// contact info served by drill id
	contacts map[string]procheck.ContactInfo

	initializations int
	searched        []string
	drilled         []string
}

func (s *fakeSession) Initialize(ctx context.Context) error {
	s.initializations++
	return nil
}

func (s *fakeSession) Search(ctx context.Context, prefix string) ([]procheck.Agent, error) {
	s.searched = append(s.searched, prefix)
	if s.broken[prefix] {
		return nil, retrier.Transient(errors.New("portal error page"))
	}
	return s.results[prefix], nil
}

func (s *fakeSession) Drillthrough(ctx context.Context, drillID string) (procheck.ContactInfo, error) {
	s.drilled = append(s.drilled, drillID)
	info, ok := s.contacts[drillID]
	if !ok {
		return procheck.ContactInfo{}, retrier.Transient(errors.New("detail page unavailable"))
	}
	return info, nil
}

// memorySink records flushes in memory keyed like the sqlite store.
type memorySink struct {
	agents map[string]procheck.Agent
	order  []string
	saves  int
	fail   bool
}

func newMemorySink() *memorySink {
	return &memorySink{agents: map[string]procheck.Agent{}}
}

func (s *memorySink) SaveSnapshot(ctx context.Context, agents []procheck.Agent) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.saves++
	for _, a := range agents {
		key := Key(a)
		if _, seen := s.agents[key]; !seen {
			s.order = append(s.order, key)
		}
		s.agents[key] = a
	}
	return nil
}

func (s *memorySink) ListAgents(ctx context.Context) ([]procheck.Agent, error) {
	var out []procheck.Agent
	for _, key := range s.order {
		out = append(out, s.agents[key])
	}
	return out, nil
}

func fastRetry() retrier.Policy {
	return retrier.Policy{Attempts: 3, BaseDelay: time.Millisecond}
}

func testOrchestrator(t *testing.T, session Session, sink Sink, prefixes []string, deep bool) (*Orchestrator, *CheckpointStore) {
	t.Helper()
	cleanup := telemetry.SetupForTesting(t, "test:services/sweep")
	t.Cleanup(cleanup)

	checkpoint := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	return NewOrchestrator(Options{
		Session:    session,
		Checkpoint: checkpoint,
		Sink:       sink,
		Retry:      fastRetry(),
		Prefixes:   prefixes,
		Deep:       deep,
	}), checkpoint
}

func TestSurfaceSweepAbsorbsPrefixFailures(t *testing.T) {
	session := &fakeSession{
		results: map[string][]procheck.Agent{
			"A": {
				{DrillID: "id-1", FirstName: "Alice", LastName: "Anderson", City: "CALGARY", Email: "a@b.ca"},
				{DrillID: "id-2", FirstName: "Adam", LastName: "Ames"},
			},
		},
		broken: map[string]bool{"B": true},
	}
	sink := newMemorySink()
	orch, checkpoint := testOrchestrator(t, session, sink, []string{"A", "B"}, false)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, report.UniqueAgents)
	require.Equal(t, []string{"B"}, report.FailedPrefixes)
	require.Len(t, sink.agents, 2)

	require.True(t, checkpoint.IsQueryDone("A"))
	require.False(t, checkpoint.IsQueryDone("B"))
	require.Equal(t, []string{"B"}, checkpoint.State().FailedPrefixes)
	require.Equal(t, 2, checkpoint.State().TotalAgentsFound)

	// the broken prefix burned the whole attempt budget; session re-init
	// kicked in at the reset threshold
	require.Equal(t, []string{"A", "B", "B", "B"}, session.searched)
	require.GreaterOrEqual(t, session.initializations, 2)

	// normalization happened before the flush
	require.Equal(t, "Calgary", sink.agents["id-1"].City)
	require.Equal(t, 50, sink.agents["id-1"].QualityScore)
}

func TestResumeSkipsCompletedPrefixes(t *testing.T) {
	session := &fakeSession{
		results: map[string][]procheck.Agent{
			"A": {{DrillID: "id-1", FirstName: "Alice"}},
			"B": {{DrillID: "id-2", FirstName: "Bob"}},
		},
	}
	sink := newMemorySink()
	orch, checkpoint := testOrchestrator(t, session, sink, []string{"A", "B"}, false)
	require.NoError(t, checkpoint.MarkQueryDone("A", 1))

	report, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.SkippedPrefixes)
	require.Equal(t, []string{"B"}, session.searched)
	require.Equal(t, 2, checkpoint.State().TotalAgentsFound)
}

func TestDeepPhaseEnrichesFromSink(t *testing.T) {
	session := &fakeSession{
		results: map[string][]procheck.Agent{
			"A": {
				{DrillID: "id-1", FirstName: "Alice", LastName: "Anderson", Brokerage: "Acme", City: "Calgary"},
				{DrillID: "id-2", FirstName: "Adam", LastName: "Ames"},
				{FirstName: "Amy", LastName: "Ash", Brokerage: "Acme"}, // no drill id, never drilled
			},
		},
		contacts: map[string]procheck.ContactInfo{
			"id-1": {Email: "alice@acme.ca", Phone: "(403) 555-1234"},
			// id-2 is missing, its drillthrough fails every attempt
		},
	}
	sink := newMemorySink()
	orch, checkpoint := testOrchestrator(t, session, sink, []string{"A"}, true)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.DeepEnriched)
	require.Equal(t, 1, report.DeepFailed)

	enriched := sink.agents["id-1"]
	require.Equal(t, "alice@acme.ca", enriched.Email)
	require.Equal(t, "(403) 555-1234", enriched.Phone)
	require.Equal(t, 100, enriched.QualityScore)

	// failed drillthrough still counts as done with empty contact info
	require.True(t, checkpoint.IsDeepDone("id-2"))
	require.Empty(t, sink.agents["id-2"].Email)
	require.Equal(t, PhaseDeep, checkpoint.State().Phase)

	require.NotContains(t, session.drilled, "")
}

func TestDeepPhaseSkipsCompletedIDs(t *testing.T) {
	session := &fakeSession{
		results: map[string][]procheck.Agent{
			"A": {{DrillID: "id-1", FirstName: "Alice"}},
		},
		contacts: map[string]procheck.ContactInfo{
			"id-1": {Email: "alice@acme.ca"},
		},
	}
	sink := newMemorySink()
	orch, checkpoint := testOrchestrator(t, session, sink, []string{"A"}, true)
	require.NoError(t, checkpoint.MarkDeepDone("id-1"))

	_, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, session.drilled)
}

func TestInvalidEmailFromDrillthroughIsDiscarded(t *testing.T) {
	session := &fakeSession{
		results: map[string][]procheck.Agent{
			"A": {{DrillID: "id-1", FirstName: "Alice"}},
		},
		contacts: map[string]procheck.ContactInfo{
			"id-1": {Email: "not an email", Phone: "(403) 555-1234"},
		},
	}
	sink := newMemorySink()
	orch, _ := testOrchestrator(t, session, sink, []string{"A"}, true)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.DeepEnriched)
	require.Empty(t, sink.agents["id-1"].Email)
	require.Equal(t, "(403) 555-1234", sink.agents["id-1"].Phone)
}

func TestSinkFailureIsFatal(t *testing.T) {
	session := &fakeSession{
		results: map[string][]procheck.Agent{
			"A": {{DrillID: "id-1", FirstName: "Alice"}},
		},
	}
	sink := newMemorySink()
	sink.fail = true
	orch, _ := testOrchestrator(t, session, sink, []string{"A"}, false)

	_, err := orch.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "flush snapshot")
}

func TestCheckpointFailureIsFatal(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:services/sweep")
	t.Cleanup(cleanup)

	// a checkpoint path that is an existing directory makes the rename fail
	checkpoint := NewCheckpointStore(t.TempDir())
	session := &fakeSession{
		results: map[string][]procheck.Agent{
			"A": {{DrillID: "id-1", FirstName: "Alice"}},
		},
	}
	orch := NewOrchestrator(Options{
		Session:    session,
		Checkpoint: checkpoint,
		Sink:       newMemorySink(),
		Retry:      fastRetry(),
		Prefixes:   []string{"A"},
	})

	_, err := orch.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "persist checkpoint")
}

func TestCancellationStopsTheSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session := &fakeSession{results: map[string][]procheck.Agent{}}
	sink := newMemorySink()

	var prefixes []string
	for i := 0; i < 100; i++ {
		prefixes = append(prefixes, fmt.Sprintf("P%d", i))
	}
	orch, _ := testOrchestrator(t, session, sink, prefixes, false)

	cancel()
	_, err := orch.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, session.searched)
}
