package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	holdsGranted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_holds_granted_total",
			Help: "Capacity holds granted",
		},
	)

	holdsRefused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_holds_refused_total",
			Help: "Capacity holds refused because the unit was sold out",
		},
	)

	holdsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_holds_swept_total",
			Help: "Expired holds reclaimed by the background sweep",
		},
	)

	checkins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_checkins_total",
			Help: "Entry scans by result",
		},
		[]string{"result"},
	)

	ordersConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_confirmed_total",
			Help: "Orders confirmed by payment success",
		},
	)

	ordersCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Orders cancelled after confirmation",
		},
	)

	payoutsSettled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payouts_settled_total",
			Help: "Payouts that completed the settlement handshake",
		},
	)
)

func HoldGranted() { holdsGranted.Inc() }

func HoldRefused() { holdsRefused.Inc() }

func HoldsSwept(n int) { holdsSwept.Add(float64(n)) }

func CheckIn(result string) { checkins.WithLabelValues(result).Inc() }

func OrderConfirmed() { ordersConfirmed.Inc() }

func OrderCancelled() { ordersCancelled.Inc() }

func PayoutSettled() { payoutsSettled.Inc() }

// Handler returns the prometheus scrape handler wrapped for gin
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
