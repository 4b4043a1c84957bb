package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sipmvp/callbridge/internal/engine"
)

// StatsProvider exposes the engine's outcome counters.
type StatsProvider interface {
	Stats() engine.Stats
}

// QueueDepthProvider exposes the pending action queue depth.
type QueueDepthProvider interface {
	PendingActionDepth(ctx context.Context) (int, error)
}

// AliveProvider reports the persisted engine-alive flag.
type AliveProvider interface {
	EngineAlive(ctx context.Context) (bool, error)
}

// PresentationCounter reports active call presentations.
type PresentationCounter interface {
	ActivePresentationCount() int
}

// SuppressionCounter reports active suppression entries.
type SuppressionCounter interface {
	ActiveCount() int
}

// Collector is a prometheus.Collector that gathers callbridge metrics at scrape time.
type Collector struct {
	stats         StatsProvider
	queue         QueueDepthProvider
	alive         AliveProvider
	presentations PresentationCounter
	suppressions  SuppressionCounter
	startTime     time.Time

	// Metric descriptors.
	pushOutcomesDesc  *prometheus.Desc
	actionsDesc       *prometheus.Desc
	drainsDesc        *prometheus.Desc
	queueDepthDesc    *prometheus.Desc
	engineAliveDesc   *prometheus.Desc
	presentationsDesc *prometheus.Desc
	suppressionsDesc  *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if unavailable.
func NewCollector(
	stats StatsProvider,
	queue QueueDepthProvider,
	alive AliveProvider,
	presentations PresentationCounter,
	suppressions SuppressionCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		stats:         stats,
		queue:         queue,
		alive:         alive,
		presentations: presentations,
		suppressions:  suppressions,
		startTime:     startTime,

		pushOutcomesDesc: prometheus.NewDesc(
			"callbridge_push_outcomes_total",
			"Total inbound push payloads by handling outcome",
			[]string{"outcome"}, nil,
		),
		actionsDesc: prometheus.NewDesc(
			"callbridge_actions_total",
			"Total notification actions by intake result",
			[]string{"result"}, nil,
		),
		drainsDesc: prometheus.NewDesc(
			"callbridge_drains_total",
			"Total application-resume drains of the pending action queue",
			nil, nil,
		),
		queueDepthDesc: prometheus.NewDesc(
			"callbridge_pending_actions",
			"Current depth of the pending action queue",
			nil, nil,
		),
		engineAliveDesc: prometheus.NewDesc(
			"callbridge_engine_alive",
			"Whether the application layer's call engine is running (1=alive)",
			nil, nil,
		),
		presentationsDesc: prometheus.NewDesc(
			"callbridge_active_presentations",
			"Number of incoming-call presentations currently showing",
			nil, nil,
		),
		suppressionsDesc: prometheus.NewDesc(
			"callbridge_active_suppressions",
			"Number of unexpired suppression entries",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callbridge_uptime_seconds",
			"Seconds since the callbridge process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pushOutcomesDesc
	ch <- c.actionsDesc
	ch <- c.drainsDesc
	ch <- c.queueDepthDesc
	ch <- c.engineAliveDesc
	ch <- c.presentationsDesc
	ch <- c.suppressionsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.stats != nil {
		s := c.stats.Stats()
		outcomes := map[string]uint64{
			"delivered":    s.Delivered,
			"engine_alive": s.EngineAlive,
			"expired":      s.Expired,
			"suppressed":   s.Suppressed,
			"cancelled":    s.Cancelled,
			"invalid":      s.Invalid,
		}
		for outcome, count := range outcomes {
			ch <- prometheus.MustNewConstMetric(
				c.pushOutcomesDesc, prometheus.CounterValue, float64(count), outcome,
			)
		}
		ch <- prometheus.MustNewConstMetric(
			c.actionsDesc, prometheus.CounterValue, float64(s.Enqueued), "enqueued",
		)
		ch <- prometheus.MustNewConstMetric(
			c.actionsDesc, prometheus.CounterValue, float64(s.Deduped), "deduped",
		)
		ch <- prometheus.MustNewConstMetric(
			c.drainsDesc, prometheus.CounterValue, float64(s.Drains),
		)
	}

	if c.queue != nil {
		depth, err := c.queue.PendingActionDepth(ctx)
		if err != nil {
			slog.Error("metrics: failed to read queue depth", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.queueDepthDesc, prometheus.GaugeValue, float64(depth),
			)
		}
	}

	if c.alive != nil {
		alive, err := c.alive.EngineAlive(ctx)
		if err != nil {
			slog.Error("metrics: failed to read engine-alive flag", "error", err)
		} else {
			val := 0.0
			if alive {
				val = 1.0
			}
			ch <- prometheus.MustNewConstMetric(
				c.engineAliveDesc, prometheus.GaugeValue, val,
			)
		}
	}

	if c.presentations != nil {
		ch <- prometheus.MustNewConstMetric(
			c.presentationsDesc, prometheus.GaugeValue,
			float64(c.presentations.ActivePresentationCount()),
		)
	}

	if c.suppressions != nil {
		ch <- prometheus.MustNewConstMetric(
			c.suppressionsDesc, prometheus.GaugeValue,
			float64(c.suppressions.ActiveCount()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
