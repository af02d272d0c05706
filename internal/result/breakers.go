package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/fiveworlds/internal/breaker"
	"github.com/signalnine/fiveworlds/internal/world"
)

// BreakerStore keeps breaker state between invocations of the CLI.
type BreakerStore struct {
	Path string
}

func NewBreakerStore(baseDir string) *BreakerStore {
	return &BreakerStore{Path: filepath.Join(baseDir, "breakers.json")}
}

// Load restores saved state into reg. A missing file leaves reg untouched.
func (s *BreakerStore) Load(reg *breaker.Registry) error {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading breaker state: %w", err)
	}
	var snap map[world.ID]breaker.Counts
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing breaker state: %w", err)
	}
	reg.Restore(snap)
	return nil
}

// Save writes reg's state atomically.
func (s *BreakerStore) Save(reg *breaker.Registry) error {
	data, err := json.MarshalIndent(reg.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling breaker state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing breaker state: %w", err)
	}
	return os.Rename(tmp, s.Path)
}
