// Package metrics exposes prometheus collectors for the reward claim
// service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type RewardMetrics struct {
	claimsTotal    *prometheus.CounterVec
	sweepsTotal    prometheus.Counter
	fundingTotal   prometheus.Counter
	epochsGauge    prometheus.Gauge
	rpcRequests    *prometheus.CounterVec
	sweptRemainder prometheus.Counter
}

var (
	rewardsOnce     sync.Once
	rewardsRegistry *RewardMetrics
)

// Rewards returns the process-wide reward metrics, registering the
// collectors on first use.
func Rewards() *RewardMetrics {
	rewardsOnce.Do(func() {
		rewardsRegistry = &RewardMetrics{
			claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_claims_total",
				Help: "Count of claim attempts by outcome.",
			}, []string{"outcome"}),
			sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_sweeps_total",
				Help: "Count of completed sweep settlements.",
			}),
			fundingTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_funding_events_total",
				Help: "Count of treasury funding deposits.",
			}),
			epochsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rewards_epochs_established",
				Help: "Number of established reward epochs.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_rpc_requests_total",
				Help: "Count of JSON-RPC requests by method.",
			}, []string{"method"}),
			sweptRemainder: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_swept_remainder_units_total",
				Help: "Cumulative base units returned to treasury by sweeps.",
			}),
		}
		prometheus.MustRegister(
			rewardsRegistry.claimsTotal,
			rewardsRegistry.sweepsTotal,
			rewardsRegistry.fundingTotal,
			rewardsRegistry.epochsGauge,
			rewardsRegistry.rpcRequests,
			rewardsRegistry.sweptRemainder,
		)
	})
	return rewardsRegistry
}

// ObserveClaim records a claim attempt outcome ("ok" or an error label).
func (m *RewardMetrics) ObserveClaim(outcome string) {
	m.claimsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSweep records a completed sweep and the remainder it settled.
func (m *RewardMetrics) ObserveSweep(remainderUnits float64) {
	m.sweepsTotal.Inc()
	m.sweptRemainder.Add(remainderUnits)
}

// ObserveFunding records a treasury deposit.
func (m *RewardMetrics) ObserveFunding() {
	m.fundingTotal.Inc()
}

// SetEpochCount mirrors the established-epoch count.
func (m *RewardMetrics) SetEpochCount(count float64) {
	m.epochsGauge.Set(count)
}

// ObserveRPC records a dispatched JSON-RPC method call.
func (m *RewardMetrics) ObserveRPC(method string) {
	m.rpcRequests.WithLabelValues(method).Inc()
}
