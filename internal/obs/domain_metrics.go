package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// AllocationTotal counts accepted allocation edits.
	AllocationTotal prometheus.Counter
	// AllocationRejectedTotal counts allocation edits rejected for
	// exceeding a line item's remaining quantity.
	AllocationRejectedTotal prometheus.Counter
	// SubmissionTotal counts cart submissions by mode and result.
	SubmissionTotal *prometheus.CounterVec
	// ImportRowsTotal counts parsed address upload rows by result.
	ImportRowsTotal *prometheus.CounterVec
	// BackendCallDuration records commerce backend call latency in milliseconds.
	BackendCallDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		AllocationTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Count of accepted allocation edits.",
		})
		AllocationRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "over_allocation_rejected_total",
			Help:      "Count of allocation edits rejected for exceeding remaining quantity.",
		})
		SubmissionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Count of cart submissions by mode and result.",
		}, []string{"mode", "result"})
		ImportRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Count of parsed address upload rows by result.",
		}, []string{"result"})
		BackendCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_ms",
			Help:      "Commerce backend call latency in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "result"})

		mustRegisterCollector(reg, AllocationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				AllocationTotal = v
			}
		})
		mustRegisterCollector(reg, AllocationRejectedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				AllocationRejectedTotal = v
			}
		})
		mustRegisterCollector(reg, SubmissionTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SubmissionTotal = v
			}
		})
		mustRegisterCollector(reg, ImportRowsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ImportRowsTotal = v
			}
		})
		mustRegisterCollector(reg, BackendCallDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				BackendCallDuration = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
