// Package metrics exposes Prometheus counters for ledger operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Purchases counts plan purchase attempts by result (ok/failed).
	Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "purchases_total",
		Help:      "Plan purchase attempts by result.",
	}, []string{"result"})

	// Withdrawals counts withdrawal reservations by result (reserved/failed).
	Withdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "withdrawals_total",
		Help:      "Withdrawal reservation attempts by result.",
	}, []string{"result"})

	// Settlements counts settlement applications by outcome
	// (applied/skipped/failed).
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "settlements_total",
		Help:      "Settlement applications by outcome.",
	}, []string{"outcome"})

	// Rewards counts reward claims by outcome (applied/failed).
	Rewards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "reward_claims_total",
		Help:      "Reward claim attempts by outcome.",
	}, []string{"outcome"})
)
