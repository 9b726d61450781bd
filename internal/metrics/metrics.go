// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NodesConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_nodes_connected",
		Help: "Number of node transports currently registered.",
	})

	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_clients_connected",
		Help: "Number of client transports currently open.",
	})

	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_pending_requests",
		Help: "Proxy requests in flight across all nodes.",
	})

	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_proxy_requests_total",
		Help: "Completed proxy requests by outcome.",
	}, []string{"outcome"})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_pair_redemptions_total",
		Help: "Pairing code redemption attempts by outcome.",
	}, []string{"outcome"})

	NodeEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_node_evictions_total",
		Help: "Node connections evicted by a newer connection for the same node id.",
	})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
