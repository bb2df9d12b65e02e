package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wildfly/wildfly-core-sub044/pkg/grpcapi"
)

// Metrics counts executed operations. It is a grpcapi.Observer.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var _ grpcapi.Observer = (*Metrics)(nil)

// NewMetrics returns unregistered operation metrics; NewServer registers
// them on its own registry.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mgmt_operations_total",
			Help: "Total management operations executed.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mgmt_operation_duration_seconds",
			Help:    "Time spent executing management operations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveOperation(o grpcapi.Observation) {
	m.operations.WithLabelValues(o.Operation, o.Outcome).Inc()
	m.duration.WithLabelValues(o.Operation).Observe(o.Elapsed.Seconds())
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.duration}
}

// mgmtCollector implements prometheus.Collector, reading controller state
// on each scrape.
type mgmtCollector struct {
	srv *Server

	uptime          *prometheus.Desc
	registeredHosts *prometheus.Desc
	hostInfo        *prometheus.Desc
	auditBuffered   *prometheus.Desc
}

func newCollector(srv *Server) *mgmtCollector {
	return &mgmtCollector{
		srv: srv,

		uptime: prometheus.NewDesc(
			"mgmt_uptime_seconds",
			"Seconds since the controller started.",
			nil, nil,
		),
		registeredHosts: prometheus.NewDesc(
			"mgmt_registered_hosts",
			"Host controllers currently registered.",
			nil, nil,
		),
		hostInfo: prometheus.NewDesc(
			"mgmt_host_info",
			"Registered host controller, labelled with its versions.",
			[]string{"host", "product_version", "management_version"}, nil,
		),
		auditBuffered: prometheus.NewDesc(
			"mgmt_audit_records",
			"Records held in the audit buffer.",
			nil, nil,
		),
	}
}

func (c *mgmtCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uptime
	ch <- c.registeredHosts
	ch <- c.hostInfo
	ch <- c.auditBuffered
}

func (c *mgmtCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue,
		time.Since(c.srv.startTime).Seconds())

	if c.srv.hosts != nil {
		hosts := c.srv.hosts.Hosts()
		ch <- prometheus.MustNewConstMetric(c.registeredHosts, prometheus.GaugeValue, float64(len(hosts)))
		for _, h := range hosts {
			ch <- prometheus.MustNewConstMetric(c.hostInfo, prometheus.GaugeValue, 1,
				h.Host, h.ProductVersion, managementVersion(h.ManagementMajor, h.ManagementMinor))
		}
	}

	if c.srv.audit != nil {
		ch <- prometheus.MustNewConstMetric(c.auditBuffered, prometheus.GaugeValue,
			float64(c.srv.audit.Len()))
	}
}
