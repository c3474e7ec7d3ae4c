package offline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	offlineRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_offline_requests_total",
		Help: "Total intercepted requests by route and outcome",
	}, []string{"route", "outcome"})

	offlineLifecycleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_offline_lifecycle_total",
		Help: "Install and activate attempts by step and result",
	}, []string{"step", "result"})

	offlineHookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_offline_hook_events_total",
		Help: "Background sync and push events by hook and result",
	}, []string{"hook", "result"})
)
