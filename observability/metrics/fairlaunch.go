package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics exposes the live position of every sale as gauges.
type SaleMetrics struct {
	phase            *prometheus.GaugeVec
	bidsAccepted     *prometheus.GaugeVec
	totalRaised      *prometheus.GaugeVec
	last             *prometheus.GaugeVec
	winnersProcessed *prometheus.GaugeVec
	treasury         *prometheus.GaugeVec
}

// SaleSnapshot is the subset of sale status mirrored into gauges.
type SaleSnapshot struct {
	Code             string
	Phase            string
	BidsAccepted     uint64
	TotalRaised      uint64
	Last             uint64
	WinnersProcessed uint64
	Treasury         uint64
}

var phases = []string{"bidding", "lottery_sealing", "settlement"}

var (
	saleOnce     sync.Once
	saleRegistry *SaleMetrics
)

// Sales returns the singleton sale gauge registry.
func Sales() *SaleMetrics {
	saleOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fairlaunch_sale_phase",
				Help: "One for the phase a sale is currently in, zero for the others.",
			}, []string{"sale", "phase"}),
			bidsAccepted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fairlaunch_sale_bids_accepted",
				Help: "Number of accepted bids per sale.",
			}, []string{"sale"}),
			totalRaised: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fairlaunch_sale_total_raised",
				Help: "Native currency raised per sale.",
			}, []string{"sale"}),
			last: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fairlaunch_sale_last_bid",
				Help: "Current high-water-mark bid per sale.",
			}, []string{"sale"}),
			winnersProcessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fairlaunch_sale_winners_processed",
				Help: "Winning tickets punched per sale.",
			}, []string{"sale"}),
			treasury: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fairlaunch_sale_treasury_balance",
				Help: "Native balance held by the sale treasury.",
			}, []string{"sale"}),
		}
		prometheus.MustRegister(
			saleRegistry.phase,
			saleRegistry.bidsAccepted,
			saleRegistry.totalRaised,
			saleRegistry.last,
			saleRegistry.winnersProcessed,
			saleRegistry.treasury,
		)
	})
	return saleRegistry
}

// Observe mirrors a sale snapshot into the gauges.
func (m *SaleMetrics) Observe(s SaleSnapshot) {
	if m == nil || s.Code == "" {
		return
	}
	for _, phase := range phases {
		value := 0.0
		if phase == s.Phase {
			value = 1
		}
		m.phase.WithLabelValues(s.Code, phase).Set(value)
	}
	m.bidsAccepted.WithLabelValues(s.Code).Set(float64(s.BidsAccepted))
	m.totalRaised.WithLabelValues(s.Code).Set(float64(s.TotalRaised))
	m.last.WithLabelValues(s.Code).Set(float64(s.Last))
	m.winnersProcessed.WithLabelValues(s.Code).Set(float64(s.WinnersProcessed))
	m.treasury.WithLabelValues(s.Code).Set(float64(s.Treasury))
}
