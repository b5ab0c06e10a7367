package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarceau/agentrunner/pkg/metrics"
)

// fakeProber plays back scripted availability answers; the last answer
// repeats once the script is exhausted
type fakeProber struct {
	mu      sync.Mutex
	calls   int
	answers []bool
}

func (p *fakeProber) CheckAvailability(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.answers) == 0 {
		return true
	}
	answer := p.answers[0]
	if len(p.answers) > 1 {
		p.answers = p.answers[1:]
	}
	return answer
}

func (p *fakeProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// gaugeRecorder captures engine availability observations
type gaugeRecorder struct {
	metrics.NopRecorder
	mu     sync.Mutex
	values []bool
}

func (r *gaugeRecorder) SetEngineUp(up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, up)
}

func (r *gaugeRecorder) last() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return false, false
	}
	return r.values[len(r.values)-1], true
}

func TestMonitorStatusBeforeFirstProbe(t *testing.T) {
	monitor := NewMonitor(&fakeProber{}, Options{})

	status := monitor.Status()

	assert.False(t, status.Available)
	assert.True(t, status.CheckedAt.IsZero())
	assert.Zero(t, status.ConsecutiveFailures)
}

func TestMonitorCheckNow(t *testing.T) {
	prober := &fakeProber{answers: []bool{true}}
	monitor := NewMonitor(prober, Options{})

	status := monitor.CheckNow(context.Background())

	assert.True(t, status.Available)
	assert.False(t, status.CheckedAt.IsZero())
	assert.Zero(t, status.ConsecutiveFailures)
	assert.Equal(t, status, monitor.Status())
}

func TestMonitorCountsConsecutiveFailures(t *testing.T) {
	prober := &fakeProber{answers: []bool{false, false, true, false}}
	monitor := NewMonitor(prober, Options{})
	ctx := context.Background()

	assert.Equal(t, 1, monitor.CheckNow(ctx).ConsecutiveFailures)
	assert.Equal(t, 2, monitor.CheckNow(ctx).ConsecutiveFailures)

	status := monitor.CheckNow(ctx)
	assert.True(t, status.Available)
	assert.Zero(t, status.ConsecutiveFailures)

	assert.Equal(t, 1, monitor.CheckNow(ctx).ConsecutiveFailures)
}

func TestMonitorRecordsEngineGauge(t *testing.T) {
	recorder := &gaugeRecorder{}
	prober := &fakeProber{answers: []bool{false, true}}
	monitor := NewMonitor(prober, Options{Metrics: recorder})
	ctx := context.Background()

	monitor.CheckNow(ctx)
	up, ok := recorder.last()
	require.True(t, ok)
	assert.False(t, up)

	monitor.CheckNow(ctx)
	up, ok = recorder.last()
	require.True(t, ok)
	assert.True(t, up)
}

func TestMonitorStartSchedulesProbes(t *testing.T) {
	prober := &fakeProber{}
	monitor := NewMonitor(prober, Options{Schedule: "@every 10ms"})

	require.NoError(t, monitor.Start())
	defer monitor.Stop()

	require.Eventually(t, func() bool { return prober.callCount() >= 2 }, time.Second, time.Millisecond)
	assert.True(t, monitor.Status().Available)
}

func TestMonitorRejectsInvalidSchedule(t *testing.T) {
	monitor := NewMonitor(&fakeProber{}, Options{Schedule: "not a schedule"})

	require.Error(t, monitor.Start())
}

func TestMonitorAcceptsStandardSchedule(t *testing.T) {
	monitor := NewMonitor(&fakeProber{}, Options{Schedule: "*/5 * * * *"})

	require.NoError(t, monitor.Start())
	monitor.Stop()
}

func TestMonitorAcceptsSecondsSchedule(t *testing.T) {
	monitor := NewMonitor(&fakeProber{}, Options{Schedule: "*/30 * * * * *"})

	require.NoError(t, monitor.Start())
	monitor.Stop()
}
