package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Task is the unit of work attempted in every world. It is produced upstream
// and only read here.
type Task struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Type        string `yaml:"type" json:"type"`
	Priority    string `yaml:"priority" json:"priority"`
}

func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if Slug(t.ID) == "" {
		return fmt.Errorf("task id %q has no usable characters", t.ID)
	}
	return nil
}

// LoadTask reads a task definition from a YAML file.
func LoadTask(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task %s: %w", path, err)
	}
	var t Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing task %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task %s: %w", path, err)
	}
	return &t, nil
}
