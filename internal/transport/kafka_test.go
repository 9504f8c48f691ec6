package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"telemetryagent/internal/config"
	"telemetryagent/internal/event"
)

// partialProducer rejects the messages whose batch index is listed.
type partialProducer struct {
	*mocks.SyncProducer
	reject map[int]bool
}

func (p *partialProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	var errs sarama.ProducerErrors
	for _, m := range msgs {
		if p.reject[m.Metadata.(int)] {
			errs = append(errs, &sarama.ProducerError{Msg: m, Err: sarama.ErrNotLeaderForPartition})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func TestKafka_Send_Success(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	batch := newTestBatch(2)
	for i := range batch {
		id := batch[i].ID()
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != "telemetry-events" {
				return fmt.Errorf("unexpected topic %q", msg.Topic)
			}
			key, _ := msg.Key.Encode()
			if string(key) != id {
				return fmt.Errorf("expected key %q, got %q", id, key)
			}
			value, _ := msg.Value.Encode()
			var fields map[string]any
			if err := json.Unmarshal(value, &fields); err != nil {
				return err
			}
			if fields[event.FieldID] != id {
				return fmt.Errorf("value does not carry event id")
			}
			return nil
		})
	}

	k := newKafkaWithProducer(producer, []string{"broker1:9092", "broker2:9092"}, "telemetry-events")
	defer k.Close()

	out := k.Send(context.Background(), batch)
	if !out.OK() || out.Success != 2 {
		t.Fatalf("expected 2 successes, got %+v", out)
	}
	if k.Endpoint() != "broker1:9092,broker2:9092" {
		t.Errorf("unexpected endpoint %q", k.Endpoint())
	}
}

func TestKafka_Send_ProducerFailureFailsAll(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()

	k := newKafkaWithProducer(producer, []string{"broker1:9092"}, "telemetry-events")
	defer k.Close()

	out := k.Send(context.Background(), newTestBatch(2))
	if out.OK() {
		t.Fatal("expected failure")
	}
	if out.Success != 0 || len(out.Failed) != 2 {
		t.Errorf("expected 0 success / 2 failed, got %d / %d", out.Success, len(out.Failed))
	}
	if !errors.Is(out.Err, sarama.ErrOutOfBrokers) {
		t.Errorf("expected ErrOutOfBrokers in outcome, got %v", out.Err)
	}
}

func TestKafka_Send_PartialFailure(t *testing.T) {
	producer := &partialProducer{
		SyncProducer: mocks.NewSyncProducer(t, nil),
		reject:       map[int]bool{1: true},
	}
	k := newKafkaWithProducer(producer, []string{"broker1:9092"}, "telemetry-events")
	defer k.Close()

	batch := newTestBatch(3)
	out := k.Send(context.Background(), batch)

	if out.Success != 2 {
		t.Errorf("expected 2 successes, got %d", out.Success)
	}
	if len(out.Failed) != 1 || out.Failed[0].ID() != batch[1].ID() {
		t.Errorf("expected only the second event to fail, got %v", out.Failed)
	}
}

func TestKafka_Send_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	k := newKafkaWithProducer(producer, []string{"broker1:9092"}, "telemetry-events")
	defer k.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := k.Send(ctx, newTestBatch(1))
	if out.OK() || len(out.Failed) != 1 {
		t.Fatalf("expected cancelled send to fail the event, got %+v", out)
	}
}

func TestNewKafka_InvalidEndpoint(t *testing.T) {
	_, err := NewKafka(" , ", config.KafkaConfig{Topic: "t"}, config.SOCKSConfig{})
	if !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("expected ErrInvalidEndpoint, got %v", err)
	}

	_, err = NewKafka("broker1:9092", config.KafkaConfig{}, config.SOCKSConfig{})
	if err == nil {
		t.Fatal("expected error for missing topic")
	}
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := config.KafkaConfig{
		Compression:   "lz4",
		RequiredAcks:  -1,
		SASLEnabled:   true,
		SASLMechanism: "SCRAM-SHA-512",
		SASLUser:      "agent",
		SASLPassword:  "secret",
	}

	sc, err := newSaramaConfig(cfg, config.SOCKSConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sc.Producer.Return.Successes {
		t.Error("sync producer requires Return.Successes")
	}
	if sc.Producer.Compression != sarama.CompressionLZ4 {
		t.Errorf("expected lz4 compression, got %v", sc.Producer.Compression)
	}
	if sc.Producer.RequiredAcks != sarama.WaitForAll {
		t.Errorf("expected WaitForAll, got %v", sc.Producer.RequiredAcks)
	}
	if sc.Net.SASL.Mechanism != sarama.SASLTypeSCRAMSHA512 {
		t.Errorf("expected SCRAM-SHA-512, got %v", sc.Net.SASL.Mechanism)
	}
	if sc.Net.SASL.SCRAMClientGeneratorFunc == nil {
		t.Error("expected SCRAM client generator")
	}
	if sc.Net.Proxy.Enable {
		t.Error("proxy should be disabled without SOCKS settings")
	}

	sc, err = newSaramaConfig(config.KafkaConfig{}, config.SOCKSConfig{Host: "127.0.0.1", Port: 1080})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sc.Net.Proxy.Enable || sc.Net.Proxy.Dialer == nil {
		t.Error("expected SOCKS proxy dialer")
	}
	if sc.Producer.Compression != sarama.CompressionSnappy {
		t.Errorf("expected snappy by default, got %v", sc.Producer.Compression)
	}
}

func TestXDGSCRAMClient_Begin(t *testing.T) {
	c := &XDGSCRAMClient{HashGeneratorFcn: SHA256}
	if err := c.Begin("agent", "secret", ""); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if c.Done() {
		t.Error("conversation should not be done before any step")
	}
	first, err := c.Step("")
	if err != nil {
		t.Fatalf("first step failed: %v", err)
	}
	if first == "" {
		t.Error("expected client-first message")
	}
}
