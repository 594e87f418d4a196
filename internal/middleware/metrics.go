package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// InitMetrics builds the HTTP request metrics for serviceName on reg.
// A nil reg uses the process-wide default registerer.
func InitMetrics(serviceName string, reg prometheus.Registerer) *fiberprometheus.FiberPrometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return fiberprometheus.NewWithRegistry(reg, serviceName, "newsfeed", "http", nil)
}

// MetricsMiddleware records request count, latency and in-flight requests.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
