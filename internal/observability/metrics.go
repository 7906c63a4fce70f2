package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce                sync.Once
	httpRequestsTotal           *prometheus.CounterVec
	httpLatencySeconds          *prometheus.HistogramVec
	httpErrorsTotal             *prometheus.CounterVec
	submissionsCreatedTotal     *prometheus.CounterVec
	submissionsRejectedTotal    *prometheus.CounterVec
	gradingActionsTotal         *prometheus.CounterVec
	autoGradeLatencySeconds     prometheus.Histogram
	quizAttemptsTotal           *prometheus.CounterVec
	notificationsPublishedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lms_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_submissions_created_total",
			Help: "Accepted submissions by assignment kind.",
		}, []string{"kind"})

		submissionsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_submissions_rejected_total",
			Help: "Rejected submissions by reason.",
		}, []string{"reason"})

		gradingActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_grading_actions_total",
			Help: "Grading actions by mode (auto or manual).",
		}, []string{"mode"})

		autoGradeLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lms_auto_grade_latency_seconds",
			Help:    "Wall-clock duration of full auto-grade runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		})

		quizAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_quiz_attempts_total",
			Help: "Quiz attempts by outcome.",
		}, []string{"outcome"})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_notifications_published_total",
			Help: "Notifications published by kind.",
		}, []string{"kind"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			submissionsCreatedTotal,
			submissionsRejectedTotal,
			gradingActionsTotal,
			autoGradeLatencySeconds,
			quizAttemptsTotal,
			notificationsPublishedTotal,
		)
	})
}

// HTTPRequests exposes the counter for served requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for served requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// SubmissionsCreated exposes the counter for accepted submissions.
func SubmissionsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsCreatedTotal
}

// SubmissionsRejected exposes the counter for rejected submissions.
func SubmissionsRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsRejectedTotal
}

// GradingActions exposes the counter for grading actions.
func GradingActions() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingActionsTotal
}

// AutoGradeLatency exposes the auto-grade duration histogram.
func AutoGradeLatency() prometheus.Histogram {
	RegisterMetrics()
	return autoGradeLatencySeconds
}

// QuizAttempts exposes the counter for quiz attempts.
func QuizAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return quizAttemptsTotal
}

// NotificationsPublished exposes the counter for published notifications.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}
