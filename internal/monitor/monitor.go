// Package monitor runs the periodic CPU sampling task and raises a
// notification on each rising edge across the configured threshold.
package monitor

import (
	"context"
	"sync"
	"time"

	"mibagent/internal/metrics"
	"mibagent/internal/mib"
	"mibagent/internal/notify"
	"mibagent/internal/utils"

	"github.com/google/uuid"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 5 * time.Second

// Persister writes the store to durable storage.
type Persister interface {
	Save(store *mib.Store) error
}

// Notifier delivers a crossing event. Notify is called off the tick path.
type Notifier interface {
	Notify(ctx context.Context, ev notify.CrossingEvent)
}

// Monitor samples CPU usage into the store and tracks whether the last
// sample was above the threshold.
type Monitor struct {
	store     *mib.Store
	sampler   Sampler
	persister Persister
	notifier  Notifier
	metrics   *metrics.Metrics
	log       *utils.Logger

	Interval time.Duration
	Now      func() time.Time

	tickMu   sync.Mutex
	lastOver bool

	runMu      sync.Mutex
	stop       chan struct{}
	loopWG     sync.WaitGroup
	dispatchWG sync.WaitGroup
}

func New(store *mib.Store, sampler Sampler, persister Persister, notifier Notifier, logger *utils.Logger, m *metrics.Metrics) *Monitor {
	return &Monitor{
		store:     store,
		sampler:   sampler,
		persister: persister,
		notifier:  notifier,
		metrics:   m,
		log:       logger,
		Interval:  DefaultInterval,
		Now:       time.Now,
	}
}

// Above reports the edge memory: whether the last sample exceeded the
// threshold.
func (m *Monitor) Above() bool {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.lastOver
}

// Tick takes one sample and, on a rising edge, stamps the event time and
// dispatches a crossing event asynchronously. The returned event is nil
// unless this tick crossed the threshold.
func (m *Monitor) Tick(ctx context.Context) (*notify.CrossingEvent, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		m.log.Writef("CPU sample failed: %v", err)
		return nil, err
	}
	if sample < mib.MinInteger {
		sample = mib.MinInteger
	}
	if sample > mib.MaxInteger {
		sample = mib.MaxInteger
	}

	now := m.now()
	var (
		threshold int
		address   string
		over      bool
		rising    bool
	)
	err = m.store.Update(func(tx *mib.Tx) error {
		if err := tx.Set(mib.CPUUsageOID, mib.IntegerValue(int32(sample))); err != nil {
			return err
		}
		th, err := tx.Get(mib.CPUThresholdOID)
		if err != nil {
			return err
		}
		email, err := tx.Get(mib.ManagerEmailOID)
		if err != nil {
			return err
		}
		threshold = int(th.Value.Int)
		address = email.Value.Text
		over = sample > threshold
		rising = over && !m.lastOver
		if rising {
			return tx.Set(mib.EventTimeOID, mib.TimestampValue(mib.FormatTimestamp(now)))
		}
		return nil
	})
	if err != nil {
		m.log.Writef("Monitor tick could not update store: %v", err)
		return nil, err
	}
	m.lastOver = over
	m.save()
	m.metrics.ObserveSample(sample, threshold)

	if !rising {
		return nil, nil
	}
	ev := notify.CrossingEvent{
		ID:        uuid.NewString(),
		Sample:    sample,
		Threshold: threshold,
		Address:   address,
		Timestamp: mib.FormatTimestamp(now),
		At:        now,
	}
	m.metrics.ObserveCrossing()
	m.dispatch(ev)
	return &ev, nil
}

func (m *Monitor) save() {
	if m.persister == nil {
		return
	}
	if err := m.persister.Save(m.store); err != nil {
		m.log.Writef("Failed to persist store after sample: %v", err)
	}
}

func (m *Monitor) dispatch(ev notify.CrossingEvent) {
	if m.notifier == nil {
		return
	}
	m.dispatchWG.Add(1)
	go func() {
		defer m.dispatchWG.Done()
		m.notifier.Notify(context.Background(), ev)
	}()
}

func (m *Monitor) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// Start launches the sampling loop. Calling Start twice is a no-op.
func (m *Monitor) Start() {
	m.runMu.Lock()
	if m.stop != nil {
		m.runMu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	m.runMu.Unlock()

	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.loopWG.Add(1)
	go func() {
		defer m.loopWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-ticker.C:
				_, _ = m.Tick(ctx)
			case <-stop:
				return
			}
		}
	}()
}

// Stop ends the sampling loop and waits for in-flight dispatches.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	stop := m.stop
	m.stop = nil
	m.runMu.Unlock()
	if stop != nil {
		close(stop)
	}
	m.loopWG.Wait()
	m.dispatchWG.Wait()
}

// Wait blocks until every dispatched notification has finished.
func (m *Monitor) Wait() {
	m.dispatchWG.Wait()
}
