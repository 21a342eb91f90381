package common

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the Prometheus handler exposing Go runtime and
// process collectors from the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
