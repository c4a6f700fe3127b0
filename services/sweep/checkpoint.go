package sweep

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseSurface Phase = "surface"
	PhaseDeep    Phase = "deep"
)

// Checkpoint is the durable record of sweep progress and the single
// source of truth for resume decisions. The completed/failed sets only
// ever grow within a run.
type Checkpoint struct {
	RunID             string    `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	LastUpdated       time.Time `json:"last_updated"`
	Phase             Phase     `json:"phase"`
	CompletedPrefixes []string  `json:"completed_prefixes"`
	FailedPrefixes    []string  `json:"failed_prefixes"`
	TotalAgentsFound  int       `json:"total_agents_found"`
	DeepCompletedIDs  []string  `json:"deep_completed_ids"`

	completed map[string]bool
	deepDone  map[string]bool
}

func (c *Checkpoint) index() {
	c.completed = make(map[string]bool, len(c.CompletedPrefixes))
	for _, p := range c.CompletedPrefixes {
		c.completed[p] = true
	}
	c.deepDone = make(map[string]bool, len(c.DeepCompletedIDs))
	for _, id := range c.DeepCompletedIDs {
		c.deepDone[id] = true
	}
}

// CheckpointStore persists the checkpoint to a single JSON file. Saves
// are full-state overwrites done as write-new-then-rename so a crash
// mid-save can never leave a corrupt checkpoint behind.
type CheckpointStore struct {
	path  string
	state *Checkpoint

	// deep-phase marks are batched to bound I/O; surface marks save
	// immediately since a whole query's work is at stake
	deepMarksSinceSave int
}

const deepSaveEvery = 10

func NewCheckpointStore(path string) *CheckpointStore {
	state := &Checkpoint{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Phase:     PhaseSurface,
	}
	state.index()
	return &CheckpointStore{path: path, state: state}
}

func (s *CheckpointStore) State() *Checkpoint {
	return s.state
}

// Load replaces the in-memory state with the persisted checkpoint.
// Returns false when no checkpoint file exists yet.
func (s *CheckpointStore) Load() (bool, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var state Checkpoint
	err = json.Unmarshal(raw, &state)
	if err != nil {
		return false, fmt.Errorf("parse checkpoint %s: %w", s.path, err)
	}
	state.index()
	s.state = &state
	return true, nil
}

func (s *CheckpointStore) Save() error {
	s.state.LastUpdated = time.Now().UTC()
	s.deepMarksSinceSave = 0

	raw, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(raw)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *CheckpointStore) SetPhase(phase Phase) error {
	s.state.Phase = phase
	return s.Save()
}

func (s *CheckpointStore) MarkQueryDone(prefix string, recordCount int) error {
	if s.state.completed[prefix] {
		return nil
	}
	s.state.CompletedPrefixes = append(s.state.CompletedPrefixes, prefix)
	s.state.completed[prefix] = true
	s.state.TotalAgentsFound += recordCount
	return s.Save()
}

func (s *CheckpointStore) MarkQueryFailed(prefix string) error {
	s.state.FailedPrefixes = append(s.state.FailedPrefixes, prefix)
	return s.Save()
}

func (s *CheckpointStore) IsQueryDone(prefix string) bool {
	return s.state.completed[prefix]
}

func (s *CheckpointStore) MarkDeepDone(drillID string) error {
	if s.state.deepDone[drillID] {
		return nil
	}
	s.state.DeepCompletedIDs = append(s.state.DeepCompletedIDs, drillID)
	s.state.deepDone[drillID] = true

	s.deepMarksSinceSave++
	if s.deepMarksSinceSave >= deepSaveEvery {
		return s.Save()
	}
	return nil
}

func (s *CheckpointStore) IsDeepDone(drillID string) bool {
	return s.state.deepDone[drillID]
}
