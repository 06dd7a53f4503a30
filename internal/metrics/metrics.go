package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the harness collectors on a private registry, so a run
// exports only its own series and tests can create as many as they like.
type Recorder struct {
	registry *prometheus.Registry

	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	authAttempts  *prometheus.CounterVec
	powerState    *prometheus.GaugeVec
	runSuccess    prometheus.Gauge
	runTimestamp  prometheus.Gauge
}

// NewRecorder creates a Recorder with all collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_check_total",
				Help: "Total number of harness checks by outcome",
			},
			[]string{"check", "status"},
		),

		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_check_duration_seconds",
				Help:    "Harness check duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"check"},
		),

		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_auth_attempts_total",
				Help: "Total number of session creation attempts",
			},
			[]string{"outcome"},
		),

		powerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harness_power_state",
				Help: "Power state observed by the power check (1 for the observed state)",
			},
			[]string{"phase", "state"},
		),

		runSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harness_run_success",
				Help: "Whether the last harness run passed (0=failed, 1=passed)",
			},
		),

		runTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harness_run_timestamp_seconds",
				Help: "Unix time the last harness run finished",
			},
		),
	}

	r.registry.MustRegister(
		r.checksTotal,
		r.checkDuration,
		r.authAttempts,
		r.powerState,
		r.runSuccess,
		r.runTimestamp,
	)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveCheck records the outcome and duration of one check
func (r *Recorder) ObserveCheck(check, status string, duration time.Duration) {
	r.checksTotal.WithLabelValues(check, status).Inc()
	r.checkDuration.WithLabelValues(check).Observe(duration.Seconds())
}

// ObserveAuthAttempt records one session creation attempt
func (r *Recorder) ObserveAuthAttempt(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.authAttempts.WithLabelValues(outcome).Inc()
}

// ObservePowerState records the state seen in phase ("before" or "after")
func (r *Recorder) ObservePowerState(phase, state string) {
	r.powerState.WithLabelValues(phase, state).Set(1)
}

// ObserveRun records the overall verdict
func (r *Recorder) ObserveRun(passed bool, finished time.Time) {
	if passed {
		r.runSuccess.Set(1)
	} else {
		r.runSuccess.Set(0)
	}
	r.runTimestamp.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
