package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	operations   *prometheus.CounterVec
	liquidations prometheus.Counter
	rewardsMint  prometheus.Counter
	utilisation  *prometheus.GaugeVec
	poolDeposits *prometheus.GaugeVec
	poolBorrows  *prometheus.GaugeVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide lending metrics registry.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Count of ledger operations by kind and result.",
			}, []string{"op", "result"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_liquidations_total",
				Help: "Count of completed liquidations.",
			}),
			rewardsMint: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_rewards_minted_total",
				Help: "Count of reward mint executions.",
			}),
			utilisation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_utilisation_bps",
				Help: "Pool utilisation in basis points per asset.",
			}, []string{"asset"}),
			poolDeposits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_deposited",
				Help: "Total deposited base units per asset.",
			}, []string{"asset"}),
			poolBorrows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_borrowed",
				Help: "Total borrowed base units per asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.liquidations,
			lendingRegistry.rewardsMint,
			lendingRegistry.utilisation,
			lendingRegistry.poolDeposits,
			lendingRegistry.poolBorrows,
		)
	})
	return lendingRegistry
}

// ObserveOperation records one ledger operation outcome.
func (m *LendingMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// ObserveLiquidation records one completed liquidation.
func (m *LendingMetrics) ObserveLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// ObserveRewardMint records one reward mint execution.
func (m *LendingMetrics) ObserveRewardMint() {
	if m == nil {
		return
	}
	m.rewardsMint.Inc()
}

// SetPoolGauges publishes the pool's headline figures after a state change.
func (m *LendingMetrics) SetPoolGauges(asset string, utilisationBps uint64, deposited, borrowed *big.Int) {
	if m == nil || asset == "" {
		return
	}
	m.utilisation.WithLabelValues(asset).Set(float64(utilisationBps))
	if deposited != nil {
		value, _ := new(big.Float).SetInt(deposited).Float64()
		m.poolDeposits.WithLabelValues(asset).Set(value)
	}
	if borrowed != nil {
		value, _ := new(big.Float).SetInt(borrowed).Float64()
		m.poolBorrows.WithLabelValues(asset).Set(value)
	}
}
