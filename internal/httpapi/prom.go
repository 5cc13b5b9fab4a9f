package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantgate_checks_total",
		Help: "Admission checks served, by decision.",
	}, []string{"decision"})

	checkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenantgate_check_errors_total",
		Help: "Admission operations that failed before a decision was made.",
	})
)

func observeDecision(allowed bool) {
	if allowed {
		checksTotal.WithLabelValues("allowed").Inc()
		return
	}
	checksTotal.WithLabelValues("denied").Inc()
}

func observeDecisionError() {
	checkErrorsTotal.Inc()
}
