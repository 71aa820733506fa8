package httpapi

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MimeLyc/yaml-translator/internal/cache"
	"github.com/MimeLyc/yaml-translator/internal/jobs"
)

const metricsNamespace = "translateit"

type metrics struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	saves      prometheus.Counter
	deliveries *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, queue *jobs.Queue, store *cache.Store) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "API requests by route, method and status code.",
		}, []string{"handler", "code", "method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "method"}),
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_saves_total",
			Help:      "Translations saved from the editor.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_requested_total",
			Help:      "Send requests, by whether a new job was created.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.requests, m.duration, m.saves, m.deliveries)
	if queue != nil {
		reg.MustRegister(&queueCollector{queue: queue})
	}
	if store != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cached_sessions",
			Help:      "Languages with saved progress.",
		}, func() float64 {
			return float64(len(store.CachedLanguages(context.Background())))
		}))
	}
	return m
}

func (m *metrics) instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": route}
	return promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels), h))
}

func (m *metrics) handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

var deliveryJobsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(metricsNamespace, "", "delivery_jobs"),
	"Delivery jobs currently known to the queue, by status.",
	[]string{"status"}, nil,
)

// queueCollector reports job counts at scrape time.
type queueCollector struct {
	queue *jobs.Queue
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- deliveryJobsDesc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.queue.Counts()
	for _, status := range jobs.Statuses {
		ch <- prometheus.MustNewConstMetric(deliveryJobsDesc, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}
