package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/owliabot/ais-sub001/pkg/aisjson"
)

// CheckpointSchema is the checkpoint document's schema version.
const CheckpointSchema = "ais-engine-checkpoint/0.0.2"

// PollState tracks a read-kind node's retry/until polling progress.
type PollState struct {
	Attempts        int    `json:"attempts"`
	StartedAtMs     int64  `json:"started_at_ms"`
	NextAttemptAtMs *int64 `json:"next_attempt_at_ms,omitempty"`
}

// PauseState records why a node is paused awaiting a command.
type PauseState struct {
	Reason    string                 `json:"reason"`
	Details   map[string]interface{} `json:"details,omitempty"`
	PausedAtMs int64                 `json:"paused_at_ms"`
}

// RunnerCommandState is the extensions.runner_command_state block
// seeding idempotent command replay.
type RunnerCommandState struct {
	ProcessedCommandIDs []string `json:"processed_command_ids,omitempty"`
}

// Checkpoint is the schema-versioned checkpoint envelope.
type Checkpoint struct {
	Schema            string                     `json:"schema"`
	Plan              interface{}                `json:"plan"`
	Runtime           map[string]interface{}      `json:"runtime"`
	CompletedNodeIDs  []string                    `json:"completed_node_ids"`
	PollStateByNodeID map[string]PollState        `json:"poll_state_by_node_id,omitempty"`
	PausedByNodeID    map[string]PauseState        `json:"paused_by_node_id,omitempty"`
	Extensions        struct {
		RunnerCommandState RunnerCommandState `json:"runner_command_state"`
	} `json:"extensions"`
}

// NewCheckpoint builds an empty, schema-stamped checkpoint.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		Schema:            CheckpointSchema,
		Runtime:           map[string]interface{}{},
		CompletedNodeIDs:  []string{},
		PollStateByNodeID: map[string]PollState{},
		PausedByNodeID:    map[string]PauseState{},
	}
}

// IsNodeCompleted reports whether nodeID is in CompletedNodeIDs.
func (c *Checkpoint) IsNodeCompleted(nodeID string) bool {
	for _, id := range c.CompletedNodeIDs {
		if id == nodeID {
			return true
		}
	}
	return false
}

// IsCommandProcessed reports whether id has already been applied.
func (c *Checkpoint) IsCommandProcessed(id string) bool {
	for _, seen := range c.Extensions.RunnerCommandState.ProcessedCommandIDs {
		if seen == id {
			return true
		}
	}
	return false
}

// MarkCommandProcessed appends id to the processed set if not present.
func (c *Checkpoint) MarkCommandProcessed(id string) {
	if c.IsCommandProcessed(id) {
		return
	}
	c.Extensions.RunnerCommandState.ProcessedCommandIDs = append(c.Extensions.RunnerCommandState.ProcessedCommandIDs, id)
}

// Serialize encodes the checkpoint to JSON, routing the runtime root's
// bigint/bytes values through the tagged codec so Deserialize can
// reconstruct them exactly (invariant: save(x); load() == x).
func (c *Checkpoint) Serialize() ([]byte, error) {
	return aisjson.Marshal(c)
}

// DeserializeCheckpoint decodes a checkpoint from JSON.
func DeserializeCheckpoint(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := aisjson.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("deserialize checkpoint: %w", err)
	}
	return &cp, nil
}

// Store persists and retrieves the latest checkpoint for a run.
type Store interface {
	Save(runID string, cp *Checkpoint) error
	Load(runID string) (*Checkpoint, bool, error)
}

// MemoryStore keeps the last checkpoint per run in memory. The engine
// CLI does not use it; it always writes through a FileStore.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*Checkpoint)}
}

func (m *MemoryStore) Save(runID string, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[runID] = cp
	return nil
}

func (m *MemoryStore) Load(runID string) (*Checkpoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[runID]
	return cp, ok, nil
}

// FileStore persists a single checkpoint file at path, written with
// write-to-temp-then-rename atomicity. The runID is not part of the file
// name: every Save overwrites the same file, and Load returns it
// whatever runID is passed.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Save(runID string, cp *Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := cp.Serialize()
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}

func (f *FileStore) Load(runID string) (*Checkpoint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	cp, err := DeserializeCheckpoint(data)
	if err != nil {
		return nil, false, err
	}
	return cp, true, nil
}
