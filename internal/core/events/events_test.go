package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solatis/dispatchkeeper/internal/core/config"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNew_NopWithoutBrokers(t *testing.T) {
	p, err := New(config.EventsConfig{Topic: "groups"}, nil)
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), NewGroupChanged(1, ActionCreated, 0, "")))
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "groups", nil)
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "groups", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "groups", p.topic)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "groups", logger: zap.NewNop()}

	ev := NewGroupChanged(42, ActionRulesSaved, 3, "alice")
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))

	var got GroupChanged
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, *ev, got)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "rules_saved", headers["action"])
	assert.Equal(t, "1", headers["schema_version"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, topic: "groups", logger: zap.NewNop()}

	err := p.Publish(context.Background(), NewGroupChanged(1, ActionDeleted, 0, ""))
	assert.ErrorContains(t, err, "broker down")
}
