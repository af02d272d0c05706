package scaler_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/signalnine/fiveworlds/internal/scaler"
)

type fakeSampler struct {
	sample scaler.Sample
	err    error
	calls  int
}

func (f *fakeSampler) Sample(context.Context) (scaler.Sample, error) {
	f.calls++
	return f.sample, f.err
}

func TestDefaultLimitBeforeSampling(t *testing.T) {
	s := scaler.New(&fakeSampler{}, scaler.Settings{DefaultLimit: 3}, nil)
	assert.Equal(t, 3, s.CurrentLimit())
}

func TestIdleHostAllowsAllWorlds(t *testing.T) {
	f := &fakeSampler{sample: scaler.Sample{Load1: 0, CPUs: 8, MemUsedPercent: 10}}
	s := scaler.New(f, scaler.Settings{}, nil)
	assert.Equal(t, scaler.MaxLimit, s.Refresh(context.Background()))
	assert.Equal(t, scaler.MaxLimit, s.CurrentLimit())
	last, ok := s.LastSample()
	assert.True(t, ok)
	assert.Equal(t, 8, last.CPUs)
}

func TestSaturatedHostAllowsOne(t *testing.T) {
	mem := scaler.Sample{Load1: 0, CPUs: 8, MemUsedPercent: 95}
	cpu := scaler.Sample{Load1: 40, CPUs: 8, MemUsedPercent: 10}
	assert.Equal(t, scaler.MinLimit, scaler.Derive(mem, scaler.Settings{}))
	assert.Equal(t, scaler.MinLimit, scaler.Derive(cpu, scaler.Settings{}))
}

func TestDeriveTakesTighterCeiling(t *testing.T) {
	// memory headroom 0.5 -> 3, load headroom ~0.83 -> 4
	sample := scaler.Sample{Load1: 2, CPUs: 8, MemUsedPercent: 45}
	assert.Equal(t, 3, scaler.Derive(sample, scaler.Settings{MaxMemPercent: 90, MaxLoadPerCPU: 1.5}))
}

func TestDeriveAlwaysInRange(t *testing.T) {
	samples := []scaler.Sample{
		{},
		{Load1: -5, CPUs: -1, MemUsedPercent: -20},
		{Load1: 1e9, CPUs: 1, MemUsedPercent: 1e9},
		{Load1: math.NaN(), CPUs: 4, MemUsedPercent: 50},
		{Load1: math.Inf(1), CPUs: 4, MemUsedPercent: 50},
	}
	for _, smp := range samples {
		got := scaler.Derive(smp, scaler.Settings{})
		assert.GreaterOrEqual(t, got, scaler.MinLimit, "%+v", smp)
		assert.LessOrEqual(t, got, scaler.MaxLimit, "%+v", smp)
	}
}

func TestSamplingFailureFallsBackToDefault(t *testing.T) {
	f := &fakeSampler{sample: scaler.Sample{CPUs: 8}}
	s := scaler.New(f, scaler.Settings{DefaultLimit: 2}, nil)
	assert.Equal(t, scaler.MaxLimit, s.Refresh(context.Background()))

	f.err = errors.New("no /proc")
	assert.Equal(t, 2, s.Refresh(context.Background()))
	assert.Equal(t, 2, s.CurrentLimit())
}

func TestDefaultLimitIsClamped(t *testing.T) {
	high := scaler.New(nil, scaler.Settings{DefaultLimit: 50}, nil)
	assert.Equal(t, scaler.MaxLimit, high.CurrentLimit())
	low := scaler.New(nil, scaler.Settings{DefaultLimit: -4}, nil)
	assert.Equal(t, scaler.MinLimit, low.CurrentLimit())
	assert.Equal(t, scaler.MinLimit, low.Refresh(context.Background()))
}

func TestRunSamplesUntilCanceled(t *testing.T) {
	f := &fakeSampler{sample: scaler.Sample{CPUs: 4}}
	s := scaler.New(f, scaler.Settings{Interval: time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)
	assert.GreaterOrEqual(t, f.calls, 2)
}

func TestHostSampler(t *testing.T) {
	sample, err := scaler.HostSampler{}.Sample(context.Background())
	if err != nil {
		t.Skipf("host sampling unavailable: %v", err)
	}
	assert.Greater(t, sample.CPUs, 0)
}
