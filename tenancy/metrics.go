package tenancy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tournament_tenant_handles_open",
		Help: "Number of tenant store handles currently cached",
	})

	acquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_tenant_acquire_total",
		Help: "Tenant handle acquisitions by result",
	}, []string{"result"})

	evictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tournament_tenant_evictions_total",
		Help: "Tenant handles closed by the pool by reason",
	}, []string{"reason"})
)
