package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	provisioningTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_provisioning_total",
			Help: "Итоги provisioning: success, sync_warning, failed.",
		},
		[]string{"result"},
	)

	loginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_login_total",
			Help: "Итоги входа пользователей.",
		},
		[]string{"result"},
	)
)
