package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PointsIssued counts points minted through reward issuance.
	PointsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_issued_total",
		Help: "Total points issued to customers",
	})

	// PointsRedeemed counts points burned through offer redemption.
	PointsRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_redeemed_total",
		Help: "Total points redeemed by customers",
	})

	// FeesCollected counts platform fees in minor currency units.
	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_fees_collected_total",
		Help: "Total platform fees collected in minor currency units",
	})

	// OperationFailures counts failed issue/redeem operations by status.
	OperationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_operation_failures_total",
		Help: "Failed issuance and redemption operations",
	}, []string{"operation", "status"})

	// PendingIssuances tracks unresolved issuance journal rows found by the
	// reconciliation sweep.
	PendingIssuances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loyalty_pending_issuances",
		Help: "Issuance journal rows awaiting out-of-band reconciliation",
	})
)
