// Package notify delivers threshold crossing events to the configured
// sinks: SNMP trap, email, Discord and the in-process event feed.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mibagent/internal/metrics"
	"mibagent/internal/utils"
)

// CrossingEvent describes one rising-edge threshold crossing.
type CrossingEvent struct {
	ID        string    `json:"id"`
	Sample    int       `json:"sample"`
	Threshold int       `json:"threshold"`
	Address   string    `json:"address"`
	Timestamp string    `json:"timestamp"`
	At        time.Time `json:"at"`
}

// Summary is the one-line human description used in subjects and logs.
func (e CrossingEvent) Summary() string {
	return fmt.Sprintf("CPU %d%% > %d%%", e.Sample, e.Threshold)
}

// Sink delivers a crossing event to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev CrossingEvent) error
}

// DefaultSinkTimeout bounds a single sink delivery.
const DefaultSinkTimeout = 15 * time.Second

// Dispatcher fans a crossing event out to every sink. Sinks run
// concurrently and independently; failures are logged and counted only.
type Dispatcher struct {
	sinks   []Sink
	log     *utils.Logger
	metrics *metrics.Metrics
	Timeout time.Duration
}

func NewDispatcher(logger *utils.Logger, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Dispatcher{sinks: kept, log: logger, metrics: m, Timeout: DefaultSinkTimeout}
}

// Sinks returns the names of the configured sinks in order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Notify delivers ev to every sink and waits for all of them. It never
// returns an error.
func (d *Dispatcher) Notify(ctx context.Context, ev CrossingEvent) {
	if d == nil {
		return
	}
	d.log.Writef("Threshold crossed: %s (event %s)", ev.Summary(), ev.ID)
	var wg sync.WaitGroup
	for _, s := range d.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, d.timeout())
			defer cancel()
			err := s.Send(sctx, ev)
			d.metrics.ObserveDispatch(s.Name(), err)
			if err != nil {
				d.log.Writef("Notification via %s failed: %v", s.Name(), err)
			}
		}(s)
	}
	wg.Wait()
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultSinkTimeout
	}
	return d.Timeout
}
