// Package consumer drives the generator from bucket-notification messages:
// one notification names one raw-log object, which is retrieved, mapped
// and uploaded as a single invocation.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fohlab/grapl/services/sysmon-generator/internal/config"
	"github.com/fohlab/grapl/services/sysmon-generator/internal/generator"
	"github.com/fohlab/grapl/services/sysmon-generator/internal/retriever"
)

// Notification names a newly landed raw-log object.
type Notification struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Consumer consumes notifications and runs the pipeline per message.
type Consumer struct {
	cfg       *config.Config
	client    *kgo.Client
	retriever *retriever.Retriever
	generator *generator.Generator
	seen      *redis.Client // nil when the seen-object cache is disabled
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	notificationsConsumed atomic.Uint64
	notificationsSkipped  atomic.Uint64
	payloadsProcessed     atomic.Uint64
	processingErrors      atomic.Uint64
}

// New creates a consumer bound to the notification topic.
func New(cfg *config.Config, ret *retriever.Retriever, gen *generator.Generator, logger *slog.Logger) (*Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ConsumerGroup(cfg.KafkaConsumerGroup),
		kgo.ConsumeTopics(cfg.KafkaNotifyTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.FetchMaxWait(100 * time.Millisecond),
		kgo.FetchMaxBytes(10 * 1024 * 1024),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		cancel()
		return nil, err
	}

	var seen *redis.Client
	if cfg.SeenCacheEnabled {
		seen = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	return &Consumer{
		cfg:       cfg,
		client:    client,
		retriever: ret,
		generator: gen,
		seen:      seen,
		logger:    logger.With("component", "consumer"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start starts the consume loop.
func (c *Consumer) Start() {
	c.logger.Info("starting sysmon-generator consumer",
		"notify_topic", c.cfg.KafkaNotifyTopic,
		"group", c.cfg.KafkaConsumerGroup,
	)
	c.wg.Add(1)
	go c.consumeLoop()
}

// Stop stops the consumer and waits for in-flight work.
func (c *Consumer) Stop() {
	c.logger.Info("stopping sysmon-generator consumer")
	c.cancel()
	c.wg.Wait()
	c.client.Close()
	if c.seen != nil {
		_ = c.seen.Close()
	}
	c.logger.Info("sysmon-generator consumer stopped")
}

// Stats returns consumer counters.
func (c *Consumer) Stats() map[string]interface{} {
	return map[string]interface{}{
		"notifications_consumed": c.notificationsConsumed.Load(),
		"notifications_skipped":  c.notificationsSkipped.Load(),
		"payloads_processed":     c.payloadsProcessed.Load(),
		"processing_errors":      c.processingErrors.Load(),
	}
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		fetches := c.client.PollFetches(c.ctx)
		if fetches.IsClientClosed() {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				c.logger.Error("fetch error",
					"topic", err.Topic,
					"partition", err.Partition,
					"error", err.Err,
				)
			}
			continue
		}

		fetches.EachRecord(func(r *kgo.Record) {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			c.handleRecord(c.ctx, r)
		})
	}
}

// handleRecord processes one notification end to end. Failures leave the
// seen-cache clear so a redelivery can retry the object.
func (c *Consumer) handleRecord(ctx context.Context, r *kgo.Record) {
	c.notificationsConsumed.Add(1)

	var n Notification
	if err := json.Unmarshal(r.Value, &n); err != nil {
		c.logger.Warn("failed to unmarshal bucket notification", "error", err)
		c.processingErrors.Add(1)
		return
	}
	if n.Bucket == "" || n.Key == "" {
		c.logger.Warn("bucket notification missing bucket or key")
		c.processingErrors.Add(1)
		return
	}

	seenKey := "sysmon-generator:seen:" + n.Bucket + "/" + n.Key
	if c.seen != nil {
		claimed, err := c.seen.SetNX(ctx, seenKey, 1, c.cfg.SeenCacheTTL).Result()
		if err != nil {
			c.logger.Warn("seen-cache unavailable, processing anyway", "error", err)
		} else if !claimed {
			c.logger.Info("skipping already-processed object",
				"bucket", n.Bucket,
				"key", n.Key,
			)
			c.notificationsSkipped.Add(1)
			return
		}
	}

	payload, err := c.retriever.Fetch(ctx, n.Bucket, n.Key)
	if err != nil {
		c.logger.Error("failed to retrieve payload",
			"bucket", n.Bucket,
			"key", n.Key,
			"error", err,
		)
		c.processingErrors.Add(1)
		c.release(ctx, seenKey)
		return
	}

	if err := c.generator.Handle(ctx, payload); err != nil {
		c.logger.Error("failed to process payload",
			"bucket", n.Bucket,
			"key", n.Key,
			"error", err,
		)
		c.processingErrors.Add(1)
		c.release(ctx, seenKey)
		return
	}

	c.payloadsProcessed.Add(1)
}

func (c *Consumer) release(ctx context.Context, seenKey string) {
	if c.seen == nil {
		return
	}
	if err := c.seen.Del(ctx, seenKey).Err(); err != nil {
		c.logger.Warn("failed to release seen-cache claim", "key", seenKey, "error", err)
	}
}
