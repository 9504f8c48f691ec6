package transport

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"

	"telemetryagent/internal/config"
	"telemetryagent/internal/event"
	"telemetryagent/internal/network"
)

var (
	// SHA256 hash generator for SCRAM-SHA-256
	SHA256 scram.HashGeneratorFcn = func() hash.Hash { return sha256.New() }
	// SHA512 hash generator for SCRAM-SHA-512
	SHA512 scram.HashGeneratorFcn = func() hash.Hash { return sha512.New() }
)

// XDGSCRAMClient implements sarama.SCRAMClient for SCRAM authentication.
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	HashGeneratorFcn scram.HashGeneratorFcn
}

// Begin starts the SCRAM authentication.
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step processes the server challenge.
func (x *XDGSCRAMClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

// Done returns true if the conversation is complete.
func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// Kafka publishes every event of a batch as one message on a topic.
type Kafka struct {
	producer sarama.SyncProducer
	brokers  string
	topic    string
}

// NewKafka creates a Kafka transport. The endpoint is a comma-separated
// broker list; the topic and client settings come from cfg.
func NewKafka(endpoint string, cfg config.KafkaConfig, socks config.SOCKSConfig) (*Kafka, error) {
	brokers := splitBrokers(endpoint)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: no Kafka brokers in %q", ErrInvalidEndpoint, endpoint)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}

	saramaConfig, err := newSaramaConfig(cfg, socks)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newKafkaWithProducer(producer, brokers, cfg.Topic), nil
}

func newKafkaWithProducer(producer sarama.SyncProducer, brokers []string, topic string) *Kafka {
	return &Kafka{
		producer: producer,
		brokers:  strings.Join(brokers, ","),
		topic:    topic,
	}
}

func splitBrokers(endpoint string) []string {
	var brokers []string
	for _, b := range strings.Split(endpoint, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Endpoint returns the broker list.
func (k *Kafka) Endpoint() string {
	return k.brokers
}

// Send publishes the batch and waits for the broker acknowledgements.
// Messages rejected by the producer are reported as failed events.
func (k *Kafka) Send(ctx context.Context, batch event.Batch) event.Outcome {
	if len(batch) == 0 {
		return event.Outcome{}
	}
	if err := ctx.Err(); err != nil {
		return event.FailedAll(batch, err)
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(batch))
	var encodeFailed []event.Event
	var encodeErr error
	for i, ev := range batch {
		value, err := json.Marshal(ev)
		if err != nil {
			encodeFailed = append(encodeFailed, ev)
			encodeErr = err
			continue
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic:     k.topic,
			Key:       sarama.StringEncoder(ev.ID()),
			Value:     sarama.ByteEncoder(value),
			Timestamp: ev.Created(),
			Metadata:  i,
		})
	}

	out := event.Outcome{Failed: encodeFailed, Err: encodeErr}
	if len(msgs) == 0 {
		return out
	}

	err := k.producer.SendMessages(msgs)
	if err == nil {
		out.Success = len(msgs)
		return out
	}

	var perrs sarama.ProducerErrors
	if !errors.As(err, &perrs) {
		for _, m := range msgs {
			out.Failed = append(out.Failed, batch[m.Metadata.(int)])
		}
		out.Err = fmt.Errorf("kafka send failed: %w", err)
		return out
	}

	rejected := make(map[int]bool, len(perrs))
	for _, pe := range perrs {
		if idx, ok := pe.Msg.Metadata.(int); ok {
			rejected[idx] = true
		}
	}
	for _, m := range msgs {
		idx := m.Metadata.(int)
		if rejected[idx] {
			out.Failed = append(out.Failed, batch[idx])
		} else {
			out.Success++
		}
	}
	out.Err = fmt.Errorf("kafka send failed for %d of %d messages: %w", len(rejected), len(msgs), err)
	return out
}

// Close shuts down the producer.
func (k *Kafka) Close() error {
	return k.producer.Close()
}

func newSaramaConfig(cfg config.KafkaConfig, socks config.SOCKSConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()

	// SyncProducer requires both to be returned.
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = cfg.MaxRetries
	if cfg.RetryBackoff > 0 {
		sc.Producer.Retry.Backoff = cfg.RetryBackoff
	}

	switch strings.ToLower(cfg.Compression) {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		sc.Producer.Compression = sarama.CompressionSnappy
	}

	switch cfg.RequiredAcks {
	case 0:
		sc.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		sc.Producer.RequiredAcks = sarama.WaitForAll
	default:
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	}

	if cfg.Timeout > 0 {
		sc.Net.DialTimeout = cfg.Timeout
		sc.Net.ReadTimeout = cfg.Timeout
		sc.Net.WriteTimeout = cfg.Timeout
		sc.Producer.Timeout = cfg.Timeout
	}

	if cfg.EnableTLS {
		tlsConfig, err := createTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = tlsConfig
	}

	if cfg.SASLEnabled {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.SASLUser
		sc.Net.SASL.Password = cfg.SASLPassword

		switch strings.ToUpper(cfg.SASLMechanism) {
		case "SCRAM-SHA-256":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256}
			}
		case "SCRAM-SHA-512":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
			}
		default:
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if network.Enabled(socks) {
		dialer, err := network.NewSOCKS5Dialer(socks.Host, socks.Port)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer for Kafka: %w", err)
		}
		sc.Net.Proxy.Enable = true
		sc.Net.Proxy.Dialer = dialer
	}

	return sc, nil
}

func createTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
