package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mibagent/internal/metrics"
	"mibagent/internal/mib"
	"mibagent/internal/notify"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqSampler struct {
	mu      sync.Mutex
	samples []int
}

func (s *seqSampler) Sample(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return 0, errors.New("exhausted")
	}
	v := s.samples[0]
	s.samples = s.samples[1:]
	return v, nil
}

type countingPersister struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (p *countingPersister) Save(*mib.Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	return p.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.CrossingEvent
	block  chan struct{}
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.CrossingEvent) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) all() []notify.CrossingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.CrossingEvent(nil), r.events...)
}

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)

func newTestMonitor(samples ...int) (*Monitor, *mib.Store, *countingPersister, *recordingNotifier) {
	store := mib.NewDefaultStore()
	p := &countingPersister{}
	n := &recordingNotifier{}
	m := New(store, &seqSampler{samples: samples}, p, n, nil, metrics.New())
	m.Now = func() time.Time { return fixedNow }
	return m, store, p, n
}

func runTicks(t *testing.T, m *Monitor, count int) []*notify.CrossingEvent {
	t.Helper()
	var fired []*notify.CrossingEvent
	for i := 0; i < count; i++ {
		ev, err := m.Tick(context.Background())
		require.NoError(t, err)
		fired = append(fired, ev)
	}
	m.Wait()
	return fired
}

func TestSingleCrossingScenario(t *testing.T) {
	m, store, _, n := newTestMonitor(5, 30, 40)

	fired := runTicks(t, m, 3)

	assert.Nil(t, fired[0])
	require.NotNil(t, fired[1])
	assert.Nil(t, fired[2])

	events := n.all()
	require.Len(t, events, 1)
	assert.Equal(t, 30, events[0].Sample)
	assert.Equal(t, 20, events[0].Threshold)
	assert.Equal(t, mib.DefaultManagerEmail, events[0].Address)
	assert.NotEmpty(t, events[0].ID)

	et, err := store.Get(mib.EventTimeOID)
	require.NoError(t, err)
	assert.NotEmpty(t, et.Value.Text)
	assert.Equal(t, "2024-03-01,12:30:00", et.Value.Text)

	cpuObj, err := store.Get(mib.CPUUsageOID)
	require.NoError(t, err)
	assert.Equal(t, int32(40), cpuObj.Value.Int)
	assert.True(t, m.Above())
}

func TestNotifiesOncePerContiguousInterval(t *testing.T) {
	m, _, _, n := newTestMonitor(10, 30, 40, 15, 35)
	fired := runTicks(t, m, 5)

	assert.NotNil(t, fired[1])
	assert.NotNil(t, fired[4])
	assert.Len(t, n.all(), 2)
}

func TestSustainedAboveDoesNotRenotify(t *testing.T) {
	// 25 stays above a threshold of 20, so the whole run is one interval.
	m, _, _, n := newTestMonitor(10, 30, 40, 25, 35)
	runTicks(t, m, 5)
	assert.Len(t, n.all(), 1)
}

func TestEqualToThresholdIsNotOver(t *testing.T) {
	m, _, _, n := newTestMonitor(20, 20, 21)
	fired := runTicks(t, m, 3)
	assert.Nil(t, fired[0])
	assert.Nil(t, fired[1])
	assert.NotNil(t, fired[2])
	assert.Len(t, n.all(), 1)
}

func TestThresholdChangeIsReadEachTick(t *testing.T) {
	m, store, _, n := newTestMonitor(50, 50)
	runTicks(t, m, 1)
	require.Len(t, n.all(), 1)

	require.NoError(t, store.Set(mib.CPUThresholdOID, mib.IntegerValue(80)))
	fired := runTicks(t, m, 1)
	assert.Nil(t, fired[0])
	assert.False(t, m.Above())
}

func TestEveryTickPersists(t *testing.T) {
	m, store, p, _ := newTestMonitor(5, 30, 40)
	before := store.Generation()
	runTicks(t, m, 3)
	assert.Equal(t, 3, p.saves)
	assert.Equal(t, before+3, store.Generation())
}

func TestPersistFailureDoesNotAbortTick(t *testing.T) {
	m, _, p, n := newTestMonitor(5, 30)
	p.err = errors.New("disk full")
	runTicks(t, m, 2)
	assert.Len(t, n.all(), 1)
}

func TestSampleErrorLeavesEdgeMemory(t *testing.T) {
	m, store, _, n := newTestMonitor(30)
	runTicks(t, m, 1)
	gen := store.Generation()

	_, err := m.Tick(context.Background())
	assert.Error(t, err)
	assert.True(t, m.Above())
	assert.Equal(t, gen, store.Generation())
	assert.Len(t, n.all(), 1)
}

func TestSamplesAreClamped(t *testing.T) {
	m, store, _, _ := newTestMonitor(150)
	runTicks(t, m, 1)
	obj, err := store.Get(mib.CPUUsageOID)
	require.NoError(t, err)
	assert.Equal(t, int32(100), obj.Value.Int)
}

func TestDispatchDoesNotBlockTick(t *testing.T) {
	m, _, _, n := newTestMonitor(5, 30, 5, 30)
	n.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			_, _ = m.Tick(context.Background())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on notification dispatch")
	}
	close(n.block)
	m.Wait()
	assert.Len(t, n.all(), 2)
}

func TestStartStop(t *testing.T) {
	store := mib.NewDefaultStore()
	ticks := make(chan struct{}, 16)
	sampler := SamplerFunc(func(context.Context) (int, error) {
		select {
		case ticks <- struct{}{}:
		default:
		}
		return 1, nil
	})
	m := New(store, sampler, nil, nil, nil, nil)
	m.Interval = 5 * time.Millisecond
	m.Start()
	m.Start()
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never ticked")
	}
	m.Stop()
	m.Stop()
}

func TestCPUSamplerDelta(t *testing.T) {
	readings := []cpu.TimesStat{
		{User: 10, System: 10, Idle: 80},
		{User: 40, System: 20, Idle: 140},
		{User: 40, System: 20, Idle: 140},
	}
	s := NewCPUSampler()
	s.times = func(context.Context, bool) ([]cpu.TimesStat, error) {
		r := readings[0]
		readings = readings[1:]
		return []cpu.TimesStat{r}, nil
	}
	require.NoError(t, s.Prime(context.Background()))

	v, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, v)

	v, err = s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestCPUSamplerErrors(t *testing.T) {
	s := NewCPUSampler()
	s.times = func(context.Context, bool) ([]cpu.TimesStat, error) { return nil, nil }
	_, err := s.Sample(context.Background())
	assert.ErrorIs(t, err, errNoCPUTimes)
}
