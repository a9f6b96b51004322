// Package events publishes pipeline progress events to Kafka. When Kafka is
// disabled the publisher degrades to log-only mode so the pipeline never
// depends on a broker being reachable.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"meeting-transcript-service/internal/observability/metrics"
	"meeting-transcript-service/internal/schema"
)

// Publisher publishes run events to separate Kafka topics: per-chunk progress
// transitions and one completion event per run.
type Publisher struct {
	writerProgress  *kafka.Writer
	writerCompleted *kafka.Writer
	principal       string
	topicProgress   string
	topicCompleted  string
	enabled         bool
	metrics         *metrics.Metrics
	validator       *schema.Validator
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicProgress  string
	TopicCompleted string
	Principal      string
	Enabled        bool
}

// New creates a Kafka event publisher with separate topics for chunk progress
// and run completion.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m, validator: v}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicProgress:  cfg.TopicProgress,
			topicCompleted: cfg.TopicCompleted,
			enabled:        false,
			metrics:        m,
			validator:      v,
		}
	}

	// Longer dial timeout to ride out DNS resolution delays in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerProgress := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicProgress,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerCompleted := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicCompleted,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicProgress", cfg.TopicProgress).
		Str("topicCompleted", cfg.TopicCompleted).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerProgress:  writerProgress,
		writerCompleted: writerCompleted,
		principal:       cfg.Principal,
		topicProgress:   cfg.TopicProgress,
		topicCompleted:  cfg.TopicCompleted,
		enabled:         true,
		metrics:         m,
		validator:       v,
	}
}

// PublishProgress publishes a per-chunk state transition, keyed by run ID.
func (p *Publisher) PublishProgress(ctx context.Context, runID string, event any) error {
	return p.publish(ctx, p.writerProgress, p.topicProgress, "progress", runID, event)
}

// PublishCompleted publishes a run completion event, keyed by run ID.
func (p *Publisher) PublishCompleted(ctx context.Context, runID string, event any) error {
	return p.publish(ctx, p.writerCompleted, p.topicCompleted, "completed", runID, event)
}

// publish validates the event, then writes it to the given Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Event failed schema validation")
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerProgress != nil {
		if e := p.writerProgress.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing progress writer")
			err = e
		}
	}
	if p.writerCompleted != nil {
		if e := p.writerCompleted.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing completed writer")
			err = e
		}
	}
	return err
}
