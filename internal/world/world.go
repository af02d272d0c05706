// Package world defines the five worlds a task is attempted in and the
// deterministic generation configuration bound to each.
package world

import (
	"fmt"
	"path/filepath"
	"strings"
)

type ID int

const (
	Alpha ID = iota
	Beta
	Gamma
	Delta
	Epsilon
)

// Count is the number of worlds in every run.
const Count = 5

var names = [Count]string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon"}

// All returns the worlds in canonical order.
func All() [Count]ID {
	return [Count]ID{Alpha, Beta, Gamma, Delta, Epsilon}
}

func (id ID) Valid() bool {
	return id >= Alpha && id <= Epsilon
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("World(%d)", int(id))
	}
	return names[id]
}

// Slug is the lowercase name used in paths and branch names.
func (id ID) Slug() string {
	return strings.ToLower(id.String())
}

// Index is the ordinal of id, usable to index fixed [Count] arrays.
func (id ID) Index() int {
	return int(id)
}

// Less reports whether id sorts before other. Used for deterministic tie-breaks.
func (id ID) Less(other ID) bool {
	return id < other
}

// Parse accepts a world name in any case.
func Parse(s string) (ID, error) {
	for i, n := range names {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown world %q", s)
}

func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid world %d", int(id))
	}
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Config is the generation configuration for one world in one run.
type Config struct {
	World       ID      `json:"world"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	SandboxPath string  `json:"sandbox_path"`
	Branch      string  `json:"branch"`
}

// Generation is the model selection for a world, before it is bound to a task.
type Generation struct {
	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

var defaults = [Count]Generation{
	Alpha:   {Model: "claude-sonnet-4-5", Temperature: 0.0},
	Beta:    {Model: "claude-sonnet-4-5", Temperature: 0.4},
	Gamma:   {Model: "claude-opus-4-1", Temperature: 0.2},
	Delta:   {Model: "gpt-5-codex", Temperature: 0.3},
	Epsilon: {Model: "gemini-2.5-pro", Temperature: 0.7},
}

// DefaultGeneration returns the built-in model and temperature for id.
func DefaultGeneration(id ID) Generation {
	return defaults[id]
}

// DefaultConfig builds the configuration for id. It is a pure function of
// its arguments.
func DefaultConfig(id ID, taskID string, ticket int, root, runTag string) Config {
	gen := defaults[id]
	name := SandboxName(id, ticket, taskID, runTag)
	return Config{
		World:       id,
		Model:       gen.Model,
		Temperature: gen.Temperature,
		SandboxPath: filepath.Join(root, name),
		Branch:      BranchPrefix + name,
	}
}

// Override replaces parts of a world's default generation settings.
type Override struct {
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
}

// Apply returns c with the fields set in o replaced.
func (c Config) Apply(o Override) Config {
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.Temperature != nil {
		c.Temperature = *o.Temperature
	}
	return c
}
