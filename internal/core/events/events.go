// Package events publishes rule group change notifications to Kafka.
//
// Downstream dispatch workers reload a group's rules when they see an event
// for it. Publishing happens after the store transaction commits; a failed
// publish is logged by the caller and never undoes the write.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/solatis/dispatchkeeper/internal/core/config"
)

const (
	// SchemaVersion of the GroupChanged payload.
	SchemaVersion = 1

	// writeTimeout is the maximum time to wait for a Kafka write operation.
	writeTimeout = 10 * time.Second
)

// Action names what happened to a group.
type Action string

const (
	ActionCreated    Action = "created"
	ActionUpdated    Action = "updated"
	ActionRulesSaved Action = "rules_saved"
	ActionDeleted    Action = "deleted"
)

// GroupChanged is the JSON payload written for every group mutation.
type GroupChanged struct {
	SchemaVersion int    `json:"schema_version"`
	GroupID       int64  `json:"group_id"`
	Action        Action `json:"action"`
	RuleCount     int    `json:"rule_count"`
	UpdateUser    string `json:"update_user,omitempty"`
	At            int64  `json:"at"`
}

// NewGroupChanged stamps an event with the current schema version and time.
func NewGroupChanged(groupID int64, action Action, ruleCount int, user string) *GroupChanged {
	return &GroupChanged{
		SchemaVersion: SchemaVersion,
		GroupID:       groupID,
		Action:        action,
		RuleCount:     ruleCount,
		UpdateUser:    user,
		At:            time.Now().Unix(),
	}
}

// Publisher delivers group change events.
type Publisher interface {
	Publish(ctx context.Context, ev *GroupChanged) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured and a no-op
// publisher otherwise.
func New(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled() {
		return NopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic, logger)
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes GroupChanged events keyed by group id, so every
// event of one group lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher configures a synchronous writer with leader acks.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	logger.Info("kafka publisher configured",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
	)

	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}, nil
}

// Publish serializes ev and writes it, waiting for the leader ack.
func (p *KafkaPublisher) Publish(ctx context.Context, ev *GroupChanged) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal group changed event: %w", err)
	}

	groupID := strconv.FormatInt(ev.GroupID, 10)
	msg := kafka.Message{
		Key:   []byte(groupID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(strconv.Itoa(ev.SchemaVersion))},
			{Key: "action", Value: []byte(ev.Action)},
			{Key: "group_id", Value: []byte(groupID)},
		},
		Time: time.Unix(ev.At, 0),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka topic %s: %w", p.topic, err)
	}

	p.logger.Debug("published group changed event",
		zap.Int64("group_id", ev.GroupID),
		zap.String("action", string(ev.Action)),
		zap.Int("rule_count", ev.RuleCount),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *GroupChanged) error { return nil }
func (NopPublisher) Close() error                                 { return nil }
