// Package metrics records masking run metrics in a private Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const namespace = "anonymizer"

// Recorder collects run metrics. A nil *Recorder ignores every call.
type Recorder struct {
	logger   *logrus.Logger
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	stateDuration    *prometheus.HistogramVec
	operatorDuration *prometheus.HistogramVec
	rowsAffected     *prometheus.CounterVec
	rowsDeleted      *prometheus.CounterVec
	riskScore        *prometheus.GaugeVec
	utilityDelta     *prometheus.GaugeVec
	unavailable      prometheus.Counter
}

// NewRecorder creates a recorder with its own registry
func NewRecorder(logger *logrus.Logger) (*Recorder, error) {
	r := &Recorder{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Masking runs by outcome.",
		}, []string{"outcome"}),
		stateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "state_duration_seconds",
			Help:      "Time spent in each staging state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		operatorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operator_duration_seconds",
			Help:      "Time spent applying transforms, by operator kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		rowsAffected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_affected_total",
			Help:      "Rows changed by transforms, by operator kind.",
		}, []string{"kind"}),
		rowsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_deleted_total",
			Help:      "Rows deleted by transforms, by operator kind.",
		}, []string{"kind"}),
		riskScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Risk metric of the last run, averaged over QI sets.",
		}, []string{"metric"}),
		utilityDelta: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "utility_delta_percent",
			Help:      "Mean utility delta of the last run, by statistic.",
		}, []string{"statistic"}),
		unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_unavailable_total",
			Help:      "Risk or utility figures that could not be computed.",
		}),
	}

	collectors := []prometheus.Collector{
		r.runsTotal, r.stateDuration, r.operatorDuration, r.rowsAffected,
		r.rowsDeleted, r.riskScore, r.utilityDelta, r.unavailable,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordRun counts a finished run
func (r *Recorder) RecordRun(outcome string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
}

// RecordState observes the time spent in a staging state
func (r *Recorder) RecordState(state string, d time.Duration) {
	if r == nil {
		return
	}
	r.stateDuration.WithLabelValues(state).Observe(d.Seconds())
}

// RecordOperator observes one transform execution
func (r *Recorder) RecordOperator(kind string, d time.Duration, affected, deleted int) {
	if r == nil {
		return
	}
	r.operatorDuration.WithLabelValues(kind).Observe(d.Seconds())
	r.rowsAffected.WithLabelValues(kind).Add(float64(affected))
	r.rowsDeleted.WithLabelValues(kind).Add(float64(deleted))
}

// SetRisk publishes an averaged risk metric
func (r *Recorder) SetRisk(metric string, value float64) {
	if r == nil {
		return
	}
	r.riskScore.WithLabelValues(metric).Set(value)
}

// SetUtility publishes a mean utility delta
func (r *Recorder) SetUtility(statistic string, value float64) {
	if r == nil {
		return
	}
	r.utilityDelta.WithLabelValues(statistic).Set(value)
}

// AddUnavailable counts figures that could not be computed
func (r *Recorder) AddUnavailable(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.unavailable.Add(float64(n))
}

// WriteTextfile writes the registry in the text exposition format, for the node exporter's
// textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		r.logger.Errorf("Error writing metrics to %s: %v", path, err)
		return err
	}
	r.logger.Infof("Wrote run metrics to %s", path)
	return nil
}
