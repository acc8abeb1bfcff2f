package registration

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsMu          sync.Mutex
	metricsInitialized bool
	metricsError       error

	// Read on hot paths without metricsMu.
	lookupCounter     atomic.Pointer[prometheus.CounterVec]
	draftWriteCounter atomic.Pointer[prometheus.CounterVec]
	submissionCounter atomic.Pointer[prometheus.CounterVec]
)

// SetupMetrics registers the registration workflow collectors. Only the first
// call registers; later calls return the first outcome.
func SetupMetrics(reg prometheus.Registerer) error {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsInitialized {
		return metricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "practicum_registration_lookups_total",
		Help: "Debounced lookups by use site and outcome.",
	}, []string{"lookup", "outcome"})
	drafts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "practicum_registration_draft_writes_total",
		Help: "Draft persistence writes by outcome.",
	}, []string{"outcome"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "practicum_registration_submissions_total",
		Help: "Registration submissions by outcome.",
	}, []string{"outcome"})

	collectors := []*prometheus.CounterVec{lookups, drafts, submissions}
	for i, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
				if !ok {
					metricsError = fmt.Errorf("registration metrics: unexpected collector type %T", already.ExistingCollector)
					continue
				}
				collectors[i] = existing
				continue
			}
			metricsError = err
			metricsInitialized = true
			return metricsError
		}
	}

	lookupCounter.Store(collectors[0])
	draftWriteCounter.Store(collectors[1])
	submissionCounter.Store(collectors[2])
	metricsInitialized = true
	return metricsError
}

func recordLookup(name, outcome string) {
	if c := lookupCounter.Load(); c != nil {
		c.WithLabelValues(name, outcome).Inc()
	}
}

func recordDraftWrite(outcome string) {
	if c := draftWriteCounter.Load(); c != nil {
		c.WithLabelValues(outcome).Inc()
	}
}

func recordSubmission(outcome string) {
	if c := submissionCounter.Load(); c != nil {
		c.WithLabelValues(outcome).Inc()
	}
}
