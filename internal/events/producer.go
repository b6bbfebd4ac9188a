package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventType represents different types of events that can be produced
type EventType string

const (
	ThreatAnalysisEvent   EventType = "threat_analysis"
	NetworkAnomalyEvent   EventType = "network_anomaly"
	IncidentResponseEvent EventType = "incident_response"
	ReportGeneratedEvent  EventType = "report_generated"
	PollerErrorEvent      EventType = "poller_error"
	SystemEvent           EventType = "system"
)

// Event is published to Kafka and evaluated by the alerting rules
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
}

// Publisher sends events somewhere durable
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// messageWriter is the part of *kafka.Writer the producer needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig contains configuration for the event producer
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
}

// EventProducer handles producing events to Kafka
type EventProducer struct {
	writer messageWriter
	config ProducerConfig
	logger *zap.Logger
}

// NewEventProducer creates a producer writing to the configured topic
func NewEventProducer(config ProducerConfig, logger *zap.Logger) *EventProducer {
	if len(config.Brokers) == 0 {
		config.Brokers = []string{"localhost:9092"}
	}
	if config.Topic == "" {
		config.Topic = "sentinel-events"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventProducer{
		config: config,
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        config.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    config.BatchSize,
			BatchTimeout: config.BatchTimeout,
			Async:        config.Async,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Connect verifies the brokers are reachable by publishing a ping event
func (p *EventProducer) Connect(ctx context.Context) error {
	ping := Event{
		Type:   SystemEvent,
		Source: "event_producer",
		Data:   map[string]any{"message": "ping"},
	}
	if err := p.Publish(ctx, ping); err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	p.logger.Info("✅ Connected to Kafka",
		zap.Strings("brokers", p.config.Brokers),
		zap.String("topic", p.config.Topic))
	return nil
}

// Publish sends an event to Kafka keyed by its type
func (p *EventProducer) Publish(ctx context.Context, event Event) error {
	if p.writer == nil {
		return fmt.Errorf("event producer not connected")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Type),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(event.Source)},
			{Key: "type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (p *EventProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
