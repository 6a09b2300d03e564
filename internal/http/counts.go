package http

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// ActiveCounter reports active entities per type.
type ActiveCounter interface {
	CountActive(ctx context.Context) (map[entity.Type]int, error)
}

// EntityCollector exposes active entity counts as a Prometheus gauge. Every
// known type is emitted, zero included, so series do not disappear.
type EntityCollector struct {
	counter ActiveCounter
	logger  *zap.Logger
	desc    *prometheus.Desc
	up      *prometheus.Desc
}

var _ prometheus.Collector = (*EntityCollector)(nil)

// NewEntityCollector returns a collector over counter.
func NewEntityCollector(counter ActiveCounter, logger *zap.Logger) *EntityCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityCollector{
		counter: counter,
		logger:  logger,
		desc: prometheus.NewDesc("voxnotes_active_entities",
			"Active entities in the store, labeled by type.", []string{"type"}, nil),
		up: prometheus.NewDesc("voxnotes_store_up",
			"1 if the last entity count query succeeded.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *EntityCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *EntityCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts, err := c.counter.CountActive(ctx)
	if err != nil {
		c.logger.Warn("counting active entities failed", zap.Error(err))
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	for _, t := range entity.Types {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[t]), string(t))
	}
}
