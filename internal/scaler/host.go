package scaler

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostSampler reads load average, CPU count and memory usage of the local
// machine.
type HostSampler struct{}

func (HostSampler) Sample(ctx context.Context) (Sample, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("reading load average: %w", err)
	}
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return Sample{}, fmt.Errorf("counting cpus: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("reading memory: %w", err)
	}
	return Sample{Load1: avg.Load1, CPUs: cpus, MemUsedPercent: vm.UsedPercent}, nil
}
