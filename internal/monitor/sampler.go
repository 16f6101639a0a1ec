package monitor

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Sampler returns the current CPU utilization as a whole percentage.
type Sampler interface {
	Sample(ctx context.Context) (int, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (int, error)

func (f SamplerFunc) Sample(ctx context.Context) (int, error) { return f(ctx) }

var errNoCPUTimes = errors.New("no cpu times reported")

// CPUSampler computes utilization from the delta between successive
// aggregate cpu.Times readings. The first reading primes the baseline and
// reports 0.
type CPUSampler struct {
	mu        sync.Mutex
	lastTotal float64
	lastIdle  float64
	times     func(ctx context.Context, percpu bool) ([]cpu.TimesStat, error)
}

func NewCPUSampler() *CPUSampler {
	return &CPUSampler{times: cpu.TimesWithContext}
}

// Prime records the baseline reading without producing a sample.
func (s *CPUSampler) Prime(ctx context.Context) error {
	_, err := s.Sample(ctx)
	return err
}

func (s *CPUSampler) Sample(ctx context.Context) (int, error) {
	stats, err := s.times(ctx, false)
	if err != nil {
		return 0, err
	}
	if len(stats) == 0 {
		return 0, errNoCPUTimes
	}
	total := cpuTotal(stats[0])
	idle := stats[0].Idle + stats[0].Iowait

	s.mu.Lock()
	deltaTotal := total - s.lastTotal
	deltaIdle := idle - s.lastIdle
	hasPrev := s.lastTotal > 0
	s.lastTotal = total
	s.lastIdle = idle
	s.mu.Unlock()

	if !hasPrev || deltaTotal <= 0 {
		return 0, nil
	}
	used := deltaTotal - deltaIdle
	if used < 0 {
		used = 0
	}
	return int(clampFloat(used/deltaTotal*100, 0, 100)), nil
}

func cpuTotal(stat cpu.TimesStat) float64 {
	return stat.User + stat.System + stat.Nice + stat.Idle + stat.Iowait + stat.Irq + stat.Softirq + stat.Steal + stat.Guest + stat.GuestNice
}

func clampFloat(val, min, max float64) float64 {
	if math.IsNaN(val) {
		return min
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
