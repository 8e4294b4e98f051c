package metrics

import "github.com/prometheus/client_golang/prometheus"

var SweepsTotalMetrics = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lagmix_sweeps_total",
		Help: "number of completed MCMC sweeps",
	})

var TreeProposalsMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lagmix_tree_proposals_total",
		Help: "tree proposals by move type and outcome",
	}, []string{"move", "outcome"})

var SamplesRecordedMetrics = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lagmix_samples_recorded_total",
		Help: "number of recorded posterior samples",
	})

func init() {
	prometheus.MustRegister(SweepsTotalMetrics, TreeProposalsMetrics, SamplesRecordedMetrics)
}
