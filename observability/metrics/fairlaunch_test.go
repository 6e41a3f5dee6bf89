package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSalesObserve(t *testing.T) {
	m := Sales()
	m.Observe(SaleSnapshot{Code: "GAUGE1", Phase: "lottery_sealing", BidsAccepted: 3, TotalRaised: 450, Last: 200})

	if got := testutil.ToFloat64(m.phase.WithLabelValues("GAUGE1", "lottery_sealing")); got != 1 {
		t.Fatalf("active phase gauge %v", got)
	}
	if got := testutil.ToFloat64(m.phase.WithLabelValues("GAUGE1", "bidding")); got != 0 {
		t.Fatalf("inactive phase gauge %v", got)
	}
	if got := testutil.ToFloat64(m.totalRaised.WithLabelValues("GAUGE1")); got != 450 {
		t.Fatalf("total raised gauge %v", got)
	}

	var nilMetrics *SaleMetrics
	nilMetrics.Observe(SaleSnapshot{Code: "GAUGE1"})
}
