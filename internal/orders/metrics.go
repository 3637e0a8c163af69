package orders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "group_orders_created_total",
		Help: "Group orders created.",
	})
	ordersConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "group_orders_confirmed_total",
		Help: "Group orders that reached Confirmed.",
	})
	ordersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "group_orders_cancelled_total",
		Help: "Group orders that reached Cancelled.",
	})
	ordersDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "group_orders_delivered_total",
		Help: "Group orders that reached Delivered.",
	})
	paymentsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "group_order_payments_total",
		Help: "Successful participant payments.",
	})
	otpValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "group_order_otp_validations_total",
		Help: "OTP validation attempts by outcome.",
	}, []string{"outcome"})
)
