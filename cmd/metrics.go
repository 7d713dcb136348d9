package main

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seven320/pose-net-correction/internal/analytics"
	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/internal/windowstats"
)

type promMetrics struct {
	framesTotal       prometheus.Counter
	acceptedTotal     prometheus.Counter
	gatedTotal        prometheus.Counter
	missingPoseTotal  prometheus.Counter
	windowsTotal      prometheus.Counter
	emptyWindowTotal  prometheus.Counter
	resetTotal        prometheus.Counter
	alertTotal        prometheus.Counter
	badReqTotal       prometheus.Counter
	queueFullTotal    prometheus.Counter
	redisErrTotal     prometheus.Counter
	redisDroppedTotal prometheus.Counter
	frameSeconds      prometheus.Histogram
	smoothed          prometheus.Gauge
	baseline          prometheus.Gauge
	armed             prometheus.Gauge
	windowFill        prometheus.Gauge
}

func buildPromMetrics() promMetrics {
	return promMetrics{
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frames_total",
			Help: "Total frames processed",
		}),
		acceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samples_accepted_total",
			Help: "Samples that passed the eye confidence gate",
		}),
		gatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samples_gated_total",
			Help: "Samples dropped by the eye confidence gate",
		}),
		missingPoseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frames_missing_pose_total",
			Help: "Frames without a usable pose",
		}),
		windowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "windows_closed_total",
			Help: "Total closed windows",
		}),
		emptyWindowTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "windows_empty_total",
			Help: "Windows that closed without accepted samples",
		}),
		resetTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "history_reset_total",
			Help: "Times the smoothed history overflowed and was cleared",
		}),
		alertTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_total",
			Help: "Total alerts fired",
		}),
		badReqTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_bad_request_total",
			Help: "Total bad frame requests",
		}),
		queueFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_queue_full_total",
			Help: "Total frames rejected because the queue is full",
		}),
		redisErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_error_total",
			Help: "Total redis errors",
		}),
		redisDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_write_dropped_total",
			Help: "Redis writes dropped because the store queue was full",
		}),
		frameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "frame_processing_seconds",
			Help:    "Latency for processing one frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		smoothed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eye_distance_smoothed",
			Help: "Latest smoothed eye distance in pixels",
		}),
		baseline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eye_distance_baseline",
			Help: "Armed baseline threshold",
		}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alert_armed",
			Help: "Alert state (1 if armed)",
		}),
		windowFill: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "window_samples",
			Help: "Accepted samples in the open window",
		}),
	}
}

func (m promMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.framesTotal,
		m.acceptedTotal,
		m.gatedTotal,
		m.missingPoseTotal,
		m.windowsTotal,
		m.emptyWindowTotal,
		m.resetTotal,
		m.alertTotal,
		m.badReqTotal,
		m.queueFullTotal,
		m.redisErrTotal,
		m.redisDroppedTotal,
		m.frameSeconds,
		m.smoothed,
		m.baseline,
		m.armed,
		m.windowFill,
	)
}

func (m promMetrics) observeFrame(res analytics.Result, snap model.Snapshot, elapsed time.Duration, err error) {
	m.framesTotal.Inc()
	m.frameSeconds.Observe(elapsed.Seconds())

	switch {
	case res.Sample == nil:
		m.missingPoseTotal.Inc()
	case res.Accepted:
		m.acceptedTotal.Inc()
	default:
		m.gatedTotal.Inc()
	}

	if res.Closed {
		m.windowsTotal.Inc()
	}
	if errors.Is(err, windowstats.ErrEmptyWindow) {
		m.emptyWindowTotal.Inc()
	}
	if res.Reset {
		m.resetTotal.Inc()
	}
	if last, ok := snap.Last(); ok {
		m.smoothed.Set(float64(last))
	}
	m.windowFill.Set(float64(snap.WindowSamples))
	m.observeState(snap)
}

func (m promMetrics) observeState(snap model.Snapshot) {
	if snap.Baseline != nil {
		m.baseline.Set(*snap.Baseline)
		m.armed.Set(1)
	} else {
		m.armed.Set(0)
	}
}
