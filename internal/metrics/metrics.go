package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchTotal counts dispatch attempts.
	// Labels:
	// - channel: "chat", "email" or "sms"
	// - status:  outcome status ("success", "partial", "failed", "accepted") or "error"
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Number of dispatch attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	// recipientsTotal counts recipients by their final state.
	// Labels:
	// - channel: "chat", "email" or "sms"
	// - result:  "sent", "failed", "excluded" or "queued"
	recipientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Subsystem: "dispatch",
			Name:      "recipients_total",
			Help:      "Number of recipients handled by dispatch, by result",
		},
		[]string{"channel", "result"},
	)

	// collaboratorDuration observes calls to delivery collaborators.
	collaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "messaging",
			Subsystem: "collaborator",
			Name:      "request_duration_seconds",
			Help:      "Duration of calls to delivery collaborators",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collaborator", "status"},
	)

	// contactsRejected counts candidates refused when merged into a selection.
	contactsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Subsystem: "contacts",
			Name:      "rejected_total",
			Help:      "Number of contacts rejected while merging into a selection",
		},
		[]string{"reason"},
	)

	// queueJobs counts background bulk jobs.
	// Labels:
	// - driver: "nats" or "amqp"
	// - event:  "published", "processed", "failed"
	queueJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Number of background bulk jobs by driver and event",
		},
		[]string{"driver", "event"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messaging",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "messaging",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// IncDispatch counts one dispatch attempt.
func IncDispatch(channel, status string) {
	dispatchTotal.WithLabelValues(orUnknown(channel), orUnknown(status)).Inc()
}

// AddRecipients adds n recipients in the given result state.
func AddRecipients(channel, result string, n int) {
	if n <= 0 {
		return
	}
	recipientsTotal.WithLabelValues(orUnknown(channel), orUnknown(result)).Add(float64(n))
}

// ObserveCollaborator records the duration of a collaborator call started at start.
func ObserveCollaborator(collaborator string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	collaboratorDuration.WithLabelValues(orUnknown(collaborator), status).Observe(time.Since(start).Seconds())
}

// IncContactsRejected counts one rejected contact.
func IncContactsRejected(reason string) {
	contactsRejected.WithLabelValues(orUnknown(reason)).Inc()
}

// IncQueueJob counts one queue event.
func IncQueueJob(driver, event string) {
	queueJobs.WithLabelValues(orUnknown(driver), orUnknown(event)).Inc()
}

// HTTPMiddleware instruments each request with Prometheus metrics.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
