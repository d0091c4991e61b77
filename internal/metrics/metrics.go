package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessageTypeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dhcp_message_type_total",
			Help: "Total number of DHCP messages by type",
		},
		[]string{"type"},
	)

	MessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dhcp_message_latency_seconds",
			Help:    "Latency of DHCP message processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	AvailableLeases = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dhcp_available_leases",
			Help: "Number of addresses still free in the pool",
		},
	)

	ActiveLeases = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dhcp_active_leases",
			Help: "Number of offered or bound leases",
		},
	)

	LeaseOffers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_lease_offers_total",
		Help: "The total number of addresses offered to clients",
	})

	LeaseBindings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_lease_bindings_total",
		Help: "The total number of leases confirmed as bound",
	})

	LeaseRenewals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_lease_renewals_total",
		Help: "The total number of DHCP lease renewals",
	})

	LeaseReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_lease_releases_total",
		Help: "The total number of client-initiated lease releases",
	})

	AdminReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_admin_releases_total",
		Help: "The total number of leases released through the management API",
	})

	LeaseExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_lease_expirations_total",
		Help: "Number of times a lease has expired and was reclaimed",
	})

	PoolExhaustions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_pool_exhaustions_total",
		Help: "Number of discovers dropped because no address was free",
	})

	MalformedPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_malformed_packets_total",
		Help: "Number of datagrams dropped because they could not be decoded",
	})

	ArpCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_arp_check_failures_total",
		Help: "The total number of IP collisions detected by ARP check",
	})

	DHCPNAKs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcp_naks_total",
		Help: "Number of DHCP NAK messages sent",
	})
)

func StartMetricsServer(listenAddr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()
	return nil
}
