// Package metrics exposes Prometheus metrics for the registry and the confirmation tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProofsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofregistry_proofs_submitted_total",
		Help: "Total number of proofs accepted by the registry",
	})

	DuplicateRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofregistry_duplicate_commitments_total",
		Help: "Total number of submissions rejected for a duplicate commitment",
	})

	CredentialsMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofregistry_credentials_minted_total",
		Help: "Total number of credentials minted",
	})

	SubmissionsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofregistry_submissions_terminal_total",
		Help: "Total number of monitored submissions that reached a terminal state",
	}, []string{"state"})

	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proofregistry_active_monitors",
		Help: "Number of submission handles currently being polled",
	})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofregistry_poll_errors_total",
		Help: "Total number of transient ledger errors seen while polling",
	})
)
