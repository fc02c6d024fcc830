package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	kindConnector = "connector"
	kindInput     = "input"
	kindOutput    = "output"
)

// Metrics holds the Prometheus collectors of the connector. A nil *Metrics
// records nothing.
type Metrics struct {
	mu sync.Mutex

	samplesWritten *prometheus.CounterVec
	samplesRead    *prometheus.CounterVec
	waitDuration   *prometheus.HistogramVec
	waitOutcomes   *prometheus.CounterVec
	openEntities   *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "connector",
		Name:      name,
		Help:      help,
	}, labels)
}

// NewMetrics creates the collectors. A nil registerer means the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:     registerer,
		samplesWritten: newCounterVec("samples_written_total", "Samples published per output", []string{"output"}),
		samplesRead:    newCounterVec("samples_exposed_total", "Samples exposed by read or take per input", []string{"input", "mode"}),
		waitOutcomes:   newCounterVec("waits_total", "Completed waits by outcome", []string{"scope", "outcome"}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "connector",
			Name:      "wait_duration_seconds",
			Help:      "Time spent blocked in wait",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"scope"}),
		openEntities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "connector",
			Name:      "open_entities",
			Help:      "Connectors, inputs and outputs not yet disposed",
		}, []string{"kind"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	collectors := []prometheus.Collector{
		m.samplesWritten,
		m.samplesRead,
		m.waitDuration,
		m.waitOutcomes,
		m.openEntities,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *Metrics) entityOpened(kind string) {
	if m == nil {
		return
	}
	m.openEntities.WithLabelValues(kind).Inc()
}

func (m *Metrics) entityClosed(kind string) {
	if m == nil {
		return
	}
	m.openEntities.WithLabelValues(kind).Dec()
}

func (m *Metrics) sampleWritten(output string) {
	if m == nil {
		return
	}
	m.samplesWritten.WithLabelValues(output).Inc()
}

func (m *Metrics) samplesExposed(input, mode string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.samplesRead.WithLabelValues(input, mode).Add(float64(n))
}

func (m *Metrics) observeWait(scope string, ok bool, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "timeout"
	switch {
	case err != nil:
		outcome = "error"
	case ok:
		outcome = "data"
	}
	m.waitOutcomes.WithLabelValues(scope, outcome).Inc()
	m.waitDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
}
