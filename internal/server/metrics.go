package server

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/livetemplate/widgetlab/internal/runtime"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "widgetlab_actions_total",
		Help: "Widget actions handled, by widget, transport and result",
	}, []string{"widget", "transport", "result"})

	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "widgetlab_render_duration_seconds",
		Help:    "Time to render a widget with livetemplate",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
	}, []string{"widget"})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "widgetlab_websocket_connections",
		Help: "Open WebSocket connections",
	})

	apiSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "widgetlab_api_sessions",
		Help: "Widget sessions held by the REST API",
	})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "widgetlab_api_rate_limited_total",
		Help: "API writes rejected by the rate limiter",
	})

	templateReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "widgetlab_template_reloads_total",
		Help: "Widget template reloads triggered by the file watcher",
	})
)

// actionResult labels the outcome of a widget action.
func actionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, runtime.ErrUnknownAction):
		return "unknown_action"
	default:
		return "error"
	}
}

func recordAction(widget, transport string, err error) {
	actionsTotal.WithLabelValues(widget, transport, actionResult(err)).Inc()
}
