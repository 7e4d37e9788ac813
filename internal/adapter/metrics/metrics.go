package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pscheid92/livechat/internal/platform/version"
)

const namespace = "livechat"

// NewRegistry creates a Prometheus registry with Go runtime and process
// collectors plus a constant build_info series for the running binary.
func NewRegistry() *prometheus.Registry {
	info := version.Get()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the running server; always 1.",
			ConstLabels: prometheus.Labels{
				"version":    info.Version,
				"commit":     info.Commit,
				"go_version": info.GoVersion,
			},
		}, func() float64 { return 1 }),
	)
	return reg
}

// Handler serves the registry, reporting its own scrape errors on it.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
