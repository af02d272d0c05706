// Package pricing converts token usage reported by agent adapters into cost.
package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTable []byte

type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider -> model -> price per 1K tokens.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Table, error) {
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// Default returns the built-in table covering the default world models.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(err)
	}
	return t
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	if t == nil || t.Providers == nil {
		return 0
	}
	models, ok := t.Providers[provider]
	if !ok {
		return t.CostForModel(model, inputTokens, outputTokens)
	}
	p, ok := models[model]
	if !ok {
		return 0
	}
	return p.cost(inputTokens, outputTokens)
}

// CostForModel prices usage when the provider is unknown. Providers are
// searched in name order so a model listed twice resolves deterministically.
func (t *Table) CostForModel(model string, inputTokens, outputTokens int) float64 {
	if t == nil {
		return 0
	}
	names := make([]string, 0, len(t.Providers))
	for name := range t.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p, ok := t.Providers[name][model]; ok {
			return p.cost(inputTokens, outputTokens)
		}
	}
	return 0
}

func (p ModelPricing) cost(in, out int) float64 {
	return (float64(in)/1000.0)*p.Input + (float64(out)/1000.0)*p.Output
}

// Estimate prices every record and sums the result.
func (t *Table) Estimate(records []UsageRecord) float64 {
	var total float64
	for _, r := range records {
		total += t.Cost(r.Provider, r.Model, r.InputTokens, r.OutputTokens)
	}
	return total
}
