package worker

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const jobName = "promo_worker"

var (
	// Worker-scoped registry; promauto.With keeps these counters out of the
	// process-global registry the API server exposes.
	registry = prometheus.NewRegistry()

	tasksReceived = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "promo_worker_tasks_received_total",
			Help: "Total number of production tasks received by the worker.",
		},
	)
	tasksFailed = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_worker_tasks_failed_total",
			Help: "Total number of tasks failed, partitioned by failure reason.",
		},
		[]string{"reason"},
	)
	batchesFinalized = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_worker_batches_finalized_total",
			Help: "Total number of finalized batches, partitioned by terminal status.",
		},
		[]string{"status"},
	)
	batchDuration = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promo_worker_batch_duration_seconds",
			Help:    "Wall-clock duration of one full pipeline run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	pusher        *push.Pusher
	metricsLogger = zap.NewNop()
)

// InitMetricsPusher initializes the Pushgateway client and verifies the
// connection with an initial push.
func InitMetricsPusher(pushgatewayURL string, logger *zap.Logger) error {
	metricsLogger = logger.Named("Metrics")

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	pusher = push.New(pushgatewayURL, jobName).Gatherer(registry).Grouping("instance", instanceID)
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("could not push initial metrics to Pushgateway: %w", err)
	}

	metricsLogger.Info("Pushgateway pusher initialized",
		zap.String("job", jobName),
		zap.String("instance", instanceID),
		zap.String("url", pushgatewayURL))
	return nil
}

// StartMetricsPusher pushes the registry on a fixed interval.
func StartMetricsPusher(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			if pusher == nil {
				ticker.Stop()
				return
			}
			_ = pushMetrics()
		}
	}()
}

func pushMetrics() error {
	if pusher == nil {
		return errors.New("pusher not initialized")
	}
	if err := pusher.Push(); err != nil {
		metricsLogger.Warn("Failed to push metrics to Pushgateway", zap.Error(err))
		return err
	}
	return nil
}

// CleanupMetrics deletes this instance's metrics from the Pushgateway.
// Deferred in main.
func CleanupMetrics() {
	if pusher == nil {
		return
	}
	if err := pusher.Delete(); err != nil {
		metricsLogger.Warn("Failed to delete metrics from Pushgateway", zap.Error(err))
	}
}

func metricsTaskReceived() {
	tasksReceived.Inc()
	_ = pushMetrics()
}

func metricsTaskFailed(reason string) {
	tasksFailed.WithLabelValues(reason).Inc()
	_ = pushMetrics()
}

func metricsBatchFinalized(status string, duration time.Duration) {
	batchesFinalized.WithLabelValues(status).Inc()
	batchDuration.Observe(duration.Seconds())
	_ = pushMetrics()
}
