package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryMetrics(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricRescheduleDecisions, 1, T("type", "behind"))
	m.Counter(MetricRescheduleDecisions, 1, T("type", "behind"))
	m.Counter(MetricRescheduleDecisions, 1, T("type", "ahead"))
	m.Gauge("tempo.plan.minutes", 120)
	m.Histogram(MetricSkipRiskScore, 65)
	m.Timing(MetricAdvisoryLatency, 2*time.Second)

	assert.Equal(t, int64(2), m.GetCounter(MetricRescheduleDecisions, T("type", "behind")))
	assert.Equal(t, int64(1), m.GetCounter(MetricRescheduleDecisions, T("type", "ahead")))
	assert.Equal(t, 120.0, m.GetGauge("tempo.plan.minutes"))
	assert.Equal(t, []float64{65}, m.GetHistogram(MetricSkipRiskScore))
	assert.Equal(t, []time.Duration{2 * time.Second}, m.GetTimings(MetricAdvisoryLatency))

	m.Reset()
	assert.Zero(t, m.GetCounter(MetricRescheduleDecisions, T("type", "behind")))
}

func TestFormatKey_IgnoresTagOrder(t *testing.T) {
	a := formatKey("x", []Tag{T("b", "2"), T("a", "1")})
	b := formatKey("x", []Tag{T("a", "1"), T("b", "2")})
	assert.Equal(t, "x:a=1:b=2", a)
	assert.Equal(t, a, b)
	assert.Equal(t, "x", formatKey("x", nil))
}

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.Counter(MetricRescheduleDecisions, 1, T("type", "behind"))
	m.Counter(MetricRescheduleDecisions, 2, T("type", "behind"))
	m.Gauge("tempo.plan.available_minutes", 384)
	m.Histogram(MetricSkipRiskScore, 75, T("level", "high"))
	m.Timing(MetricAdvisoryLatency, 1500*time.Millisecond)

	counter := findFamily(t, reg, "tempo_reschedule_decisions_total")
	require.Len(t, counter.GetMetric(), 1)
	assert.Equal(t, 3.0, counter.GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, "type", counter.GetMetric()[0].GetLabel()[0].GetName())
	assert.Equal(t, "behind", counter.GetMetric()[0].GetLabel()[0].GetValue())

	gauge := findFamily(t, reg, "tempo_plan_available_minutes")
	assert.Equal(t, 384.0, gauge.GetMetric()[0].GetGauge().GetValue())

	hist := findFamily(t, reg, "tempo_skip_risk_score")
	assert.Equal(t, uint64(1), hist.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, 75.0, hist.GetMetric()[0].GetHistogram().GetSampleSum())

	timing := findFamily(t, reg, "tempo_advisory_latency_seconds")
	assert.InDelta(t, 1.5, timing.GetMetric()[0].GetHistogram().GetSampleSum(), 0.0001)
}

func TestPrometheusMetrics_SharesVectorsAcrossInstances(t *testing.T) {
	reg := prometheus.NewRegistry()

	NewPrometheusMetrics(reg).Counter(MetricLockConflicts, 1)
	NewPrometheusMetrics(reg).Counter(MetricLockConflicts, 1)

	family := findFamily(t, reg, "tempo_lock_conflicts_total")
	assert.Equal(t, 2.0, family.GetMetric()[0].GetCounter().GetValue())
}

func TestTimeOperation(t *testing.T) {
	m := NewInMemoryMetrics()
	boom := errors.New("boom")

	err := TimeOperation(t.Context(), nil, m, "plan.generate", func() error { return boom })
	assert.ErrorIs(t, err, boom)

	value, err := TimeOperationResult(t.Context(), nil, m, "plan.generate", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, value)

	tag := T(OperationKey, "plan.generate")
	assert.Equal(t, int64(2), m.GetCounter(MetricOperationTotal, tag))
	assert.Equal(t, int64(1), m.GetCounter(MetricOperationErrors, tag))
	assert.Len(t, m.GetTimings(MetricOperationDuration, tag), 2)
}

func TestTimer_TagsDoNotLeakBetweenStops(t *testing.T) {
	m := NewInMemoryMetrics()
	timer := StartTimer("sync").WithMetrics(m).WithTags(T("provider", "google"))

	timer.Stop()
	timer.Stop()

	assert.Equal(t, int64(2), m.GetCounter(MetricOperationTotal, T("provider", "google"), T(OperationKey, "sync")))
	assert.GreaterOrEqual(t, timer.Elapsed(), time.Duration(0))
}
