// Package obs exposes the Prometheus metrics consumed by the external
// dashboard and alerting.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
)

var (
	TicksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_ticks_total",
		Help: "Controller ticks processed",
	})

	OrdersPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_orders_total",
		Help: "Orders placed",
	}, []string{"side", "reason"})

	OrdersRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_orders_rejected_total",
		Help: "Orders rejected, by rejection source",
	}, []string{"source"})

	Equity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_equity",
		Help: "Total equity in quote currency",
	})

	LastPrice = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_last_price",
		Help: "Last observed market price",
	})

	KillSwitch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_kill_switch",
		Help: "1 when the risk kill switch has tripped",
	})

	LoopErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_loop_errors_total",
		Help: "Trading loop iteration errors",
	})
)

func init() {
	prometheus.MustRegister(
		TicksProcessed,
		OrdersPlaced,
		OrdersRejected,
		Equity,
		LastPrice,
		KillSwitch,
		LoopErrors,
	)
}

// Serve exposes /metrics on the given address. It blocks, so run it in
// its own goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logs.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logs.Errorf("metrics server stopped: %+v", err)
	}
}
