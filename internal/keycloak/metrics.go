package keycloak

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы вызова Keycloak для метки outcome.
const (
	outcomeOK        = "ok"
	outcomeClientErr = "client_error"
	outcomeServerErr = "server_error"
	outcomeTransport = "transport_error"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_keycloak_requests_total",
			Help: "Количество вызовов Keycloak по операциям и исходам.",
		},
		[]string{"op", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "im_keycloak_request_duration_seconds",
			Help:    "Длительность вызовов Keycloak, включая повторы.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func outcomeForStatus(status int) string {
	switch {
	case status >= 500:
		return outcomeServerErr
	case status >= 400:
		return outcomeClientErr
	default:
		return outcomeOK
	}
}
