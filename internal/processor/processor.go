// internal/processor/processor.go
package processor

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/quotelab/quote-streamer/internal/quotecache"
	"github.com/quotelab/quote-streamer/pkg/dxlink"
	"github.com/quotelab/quote-streamer/pkg/kafka"
	"github.com/quotelab/quote-streamer/pkg/logger"
)

var procMetrics = struct {
	Events          *prometheus.CounterVec
	SerializeErrors prometheus.Counter
	PublishErrors   prometheus.Counter
	CacheErrors     prometheus.Counter
	BatchSize       prometheus.Histogram
}{
	Events: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "processor", Name: "events_total",
		Help: "Processed market events by kind",
	}, []string{"kind"}),
	SerializeErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "processor", Name: "serialize_errors_total",
		Help: "Events that failed to serialize",
	}),
	PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "processor", Name: "publish_errors_total",
		Help: "Events that failed to publish",
	}),
	CacheErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "processor", Name: "cache_errors_total",
		Help: "Latest-quote cache update failures",
	}),
	BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamer", Subsystem: "processor", Name: "batch_size",
		Help:    "Events per delivered batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	}),
}

// Processor fans decoded market events out to Kafka and the latest-quote
// cache. One instance handles every batch the session delivers.
type Processor struct {
	producer kafka.Producer
	cache    *quotecache.Cache
	topic    string
	log      *logger.Logger
}

// New builds a Processor. cache may be nil; caching is then skipped.
func New(producer kafka.Producer, cache *quotecache.Cache, topic string, log *logger.Logger) *Processor {
	return &Processor{
		producer: producer,
		cache:    cache,
		topic:    topic,
		log:      log.Named("processor"),
	}
}

// Handle processes one batch in wire order. Publish failures are logged per
// event and do not abort the rest of the batch: a stream gap is preferable
// to dropping the whole delivery.
func (p *Processor) Handle(ctx context.Context, events []dxlink.MarketEvent) {
	if len(events) == 0 {
		return
	}

	ctx, span := otel.Tracer("processor").Start(ctx, "HandleBatch",
		trace.WithAttributes(attribute.Int("batch.size", len(events))))
	defer span.End()
	procMetrics.BatchSize.Observe(float64(len(events)))

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			procMetrics.SerializeErrors.Inc()
			p.log.WithContext(ctx).Error("marshal event failed",
				zap.String("symbol", ev.Symbol), zap.Error(err))
			span.RecordError(err)
			continue
		}

		if err := p.producer.Publish(ctx, p.topic, []byte(ev.Symbol), data); err != nil {
			procMetrics.PublishErrors.Inc()
			p.log.WithContext(ctx).Error("publish event failed",
				zap.String("symbol", ev.Symbol),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
			span.RecordError(err)
			continue
		}
		procMetrics.Events.WithLabelValues(string(ev.Kind)).Inc()

		if p.cache != nil {
			if err := p.cache.Store(ctx, ev); err != nil {
				procMetrics.CacheErrors.Inc()
				p.log.WithContext(ctx).Warn("cache update failed",
					zap.String("symbol", ev.Symbol), zap.Error(err))
			}
		}
	}
}
