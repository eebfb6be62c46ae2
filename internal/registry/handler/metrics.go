package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	certguardRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certguard_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	certguardRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "certguard_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	certguardVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certguard_verifications_total",
		Help: "Total verification verdicts by status.",
	}, []string{"status"})

	certguardCertificatesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certguard_certificates_issued_total",
		Help: "Total certificates appended to the ledger.",
	})

	certguardIntegrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certguard_integrity_checks_total",
		Help: "Total ledger integrity walks by result.",
	}, []string{"result"})

	certguardHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certguard_health_checks_total",
		Help: "Total dependency health probes by result.",
	}, []string{"result"})

	certguardWebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certguard_webhook_deliveries_total",
		Help: "Total webhook delivery attempts by result.",
	}, []string{"result"})

	certguardLedgerRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "certguard_ledger_records",
		Help: "Number of records on the ledger, including genesis.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		certguardRequestsTotal.WithLabelValues(method, path, status).Inc()
		certguardRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordVerification counts a verification verdict.
func RecordVerification(status string) {
	certguardVerificationsTotal.WithLabelValues(status).Inc()
}

// RecordIssuance counts an issued certificate.
func RecordIssuance() {
	certguardCertificatesIssued.Inc()
}

// RecordIntegrityCheck counts a ledger integrity walk.
func RecordIntegrityCheck(valid bool) {
	if valid {
		certguardIntegrityChecksTotal.WithLabelValues("valid").Inc()
	} else {
		certguardIntegrityChecksTotal.WithLabelValues("broken").Inc()
	}
}

// RecordHealthCheck records a health check probe result.
func RecordHealthCheck(success bool) {
	if success {
		certguardHealthChecksTotal.WithLabelValues("success").Inc()
	} else {
		certguardHealthChecksTotal.WithLabelValues("failure").Inc()
	}
}

// RecordWebhookDelivery counts a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	certguardWebhookDeliveries.WithLabelValues(result).Inc()
}

// SetLedgerRecords sets the ledger size gauge.
func SetLedgerRecords(n int) {
	certguardLedgerRecords.Set(float64(n))
}
