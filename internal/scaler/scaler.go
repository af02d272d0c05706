// Package scaler derives how many worlds may run at once from host
// resource pressure.
package scaler

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/signalnine/fiveworlds/internal/world"
)

const (
	MinLimit = 1
	MaxLimit = world.Count
)

// Sample is one reading of host pressure.
type Sample struct {
	Load1          float64 `json:"load1"`
	CPUs           int     `json:"cpus"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}

type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

type Settings struct {
	Interval      time.Duration `yaml:"interval"`
	DefaultLimit  int           `yaml:"default_limit"`
	MaxLoadPerCPU float64       `yaml:"max_load_per_cpu"`
	MaxMemPercent float64       `yaml:"max_mem_percent"`
}

var DefaultSettings = Settings{
	Interval:      15 * time.Second,
	DefaultLimit:  2,
	MaxLoadPerCPU: 1.5,
	MaxMemPercent: 90,
}

func (s Settings) withDefaults() Settings {
	if s.Interval <= 0 {
		s.Interval = DefaultSettings.Interval
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = DefaultSettings.DefaultLimit
	}
	s.DefaultLimit = clamp(s.DefaultLimit)
	if s.MaxLoadPerCPU <= 0 {
		s.MaxLoadPerCPU = DefaultSettings.MaxLoadPerCPU
	}
	if s.MaxMemPercent <= 0 || s.MaxMemPercent > 100 {
		s.MaxMemPercent = DefaultSettings.MaxMemPercent
	}
	return s
}

type Scaler struct {
	sampler  Sampler
	settings Settings
	logger   *slog.Logger

	limit atomic.Int32
	last  atomic.Pointer[Sample]
}

func New(sampler Sampler, settings Settings, logger *slog.Logger) *Scaler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scaler{sampler: sampler, settings: settings.withDefaults(), logger: logger}
	s.limit.Store(int32(s.settings.DefaultLimit))
	return s
}

// CurrentLimit is the permitted number of concurrently running worlds,
// always within [MinLimit, MaxLimit].
func (s *Scaler) CurrentLimit() int {
	return int(s.limit.Load())
}

// LastSample returns the most recent successful sample, if any.
func (s *Scaler) LastSample() (Sample, bool) {
	p := s.last.Load()
	if p == nil {
		return Sample{}, false
	}
	return *p, true
}

// Refresh takes one sample and updates the limit. A failed sample falls back
// to the configured default.
func (s *Scaler) Refresh(ctx context.Context) int {
	if s.sampler == nil {
		s.limit.Store(int32(s.settings.DefaultLimit))
		return s.settings.DefaultLimit
	}
	sample, err := s.sampler.Sample(ctx)
	if err != nil {
		s.logger.Warn("resource sampling failed, using default limit",
			"error", err, "limit", s.settings.DefaultLimit)
		s.limit.Store(int32(s.settings.DefaultLimit))
		return s.settings.DefaultLimit
	}
	limit := Derive(sample, s.settings)
	s.last.Store(&sample)
	if prev := s.limit.Swap(int32(limit)); int(prev) != limit {
		s.logger.Debug("concurrency limit changed", "from", prev, "to", limit,
			"load1", sample.Load1, "cpus", sample.CPUs, "mem_used_percent", sample.MemUsedPercent)
	}
	return limit
}

// Run refreshes on every interval until ctx is done.
func (s *Scaler) Run(ctx context.Context) {
	s.Refresh(ctx)
	ticker := time.NewTicker(s.settings.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Derive maps a sample to a limit. Memory headroom and load per CPU each
// give a ceiling that shrinks linearly as pressure approaches its maximum;
// the smaller ceiling wins.
func Derive(sample Sample, settings Settings) int {
	settings = settings.withDefaults()
	if math.IsNaN(sample.Load1) || math.IsNaN(sample.MemUsedPercent) {
		return settings.DefaultLimit
	}

	memLimit := MaxLimit
	if sample.MemUsedPercent > 0 {
		headroom := (settings.MaxMemPercent - sample.MemUsedPercent) / settings.MaxMemPercent
		memLimit = scaled(headroom)
	}

	loadLimit := MaxLimit
	if sample.CPUs > 0 {
		perCPU := sample.Load1 / float64(sample.CPUs)
		headroom := (settings.MaxLoadPerCPU - perCPU) / settings.MaxLoadPerCPU
		loadLimit = scaled(headroom)
	}

	return clamp(min(memLimit, loadLimit))
}

// scaled turns a headroom fraction into a limit: full headroom allows
// MaxLimit, none allows MinLimit.
func scaled(headroom float64) int {
	if headroom <= 0 {
		return MinLimit
	}
	if headroom >= 1 {
		return MaxLimit
	}
	return MinLimit + int(math.Round(headroom*float64(MaxLimit-MinLimit)))
}

func clamp(n int) int {
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}
