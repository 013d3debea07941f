package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Default values for the Kafka producer
const (
	DefaultFlushTimeout = 15 * time.Second
	messageMaxBytes     = 1048576 // 1MB, a block record is a few KB at most
)

// SASLConfig holds optional SASL authentication settings.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"`
	Password         string `env:"KAFKA_SASL_PASSWORD"`
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"    envDefault:"SCRAM-SHA-512"` // SCRAM-SHA-256, SCRAM-SHA-512 or PLAIN
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"SASL_SSL"`      // SASL_SSL or SASL_PLAINTEXT
}

// Enabled reports whether credentials were provided.
func (s SASLConfig) Enabled() bool {
	return s.Username != "" && s.Password != ""
}

// ApplyToConfigMap sets the SASL properties on cfg when credentials are present.
func (s SASLConfig) ApplyToConfigMap(cfg *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	_ = cfg.SetKey("security.protocol", s.SecurityProtocol)
	_ = cfg.SetKey("sasl.mechanisms", s.Mechanism)
	_ = cfg.SetKey("sasl.username", s.Username)
	_ = cfg.SetKey("sasl.password", s.Password)
}

// ProducerConfig holds the configuration for the block record producer.
type ProducerConfig struct {
	Brokers                string         `env:"KAFKA_BROKERS"                  envDefault:"localhost:9092"` // Comma-separated broker addresses
	Topic                  string         `env:"KAFKA_TOPIC"                    envDefault:"blocks"`         // Destination topic for block records
	ClientID               string         `env:"KAFKA_CLIENT_ID"                envDefault:"blockpoller"`    // Client ID reported to the brokers
	EnableLogs             bool           `env:"KAFKA_ENABLE_LOGS"              envDefault:"false"`          // Forward librdkafka logs to the application logger
	EnsureTopic            bool           `env:"KAFKA_ENSURE_TOPIC"             envDefault:"false"`          // Create the topic at startup if it does not exist
	TopicNumPartitions     int            `env:"KAFKA_TOPIC_NUM_PARTITIONS"     envDefault:"1"`              // Partitions used when creating the topic
	TopicReplicationFactor int            `env:"KAFKA_TOPIC_REPLICATION_FACTOR" envDefault:"1"`              // Replication factor used when creating the topic
	FlushTimeout           *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"`                                        // Flush timeout when closing the producer
	SASL                   SASLConfig
}

// LoadProducerConfig loads the producer configuration from environment variables.
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("parse kafka producer config: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return ProducerConfig{}, err
	}
	return cfg, nil
}

// WithDefaults returns a copy of the config with default values filled in for any nil pointer fields.
// This method does not mutate the original config.
func (c ProducerConfig) WithDefaults() ProducerConfig {
	if c.FlushTimeout == nil {
		timeout := DefaultFlushTimeout
		c.FlushTimeout = &timeout
	}
	return c
}

// Validate checks the fields the producer cannot start without.
func (c ProducerConfig) Validate() error {
	if strings.TrimSpace(c.Brokers) == "" {
		return errors.New("kafka brokers must not be empty")
	}
	if c.Topic == "" {
		return errors.New("kafka topic must not be empty")
	}
	if c.EnsureTopic {
		return c.TopicConfig().Validate()
	}
	return nil
}

// TopicConfig returns the topic settings used by EnsureTopic.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.TopicNumPartitions,
		ReplicationFactor: c.TopicReplicationFactor,
	}
}

// AdminConfigMap builds the ConfigMap for an admin client talking to the same cluster.
func (c ProducerConfig) AdminConfigMap() *kafka.ConfigMap {
	cfg := &kafka.ConfigMap{"bootstrap.servers": c.Brokers}
	c.SASL.ApplyToConfigMap(cfg)
	return cfg
}

// ConfigMap builds the librdkafka producer configuration.
func (c ProducerConfig) ConfigMap() *kafka.ConfigMap {
	cfg := &kafka.ConfigMap{
		"bootstrap.servers": c.Brokers,
		"client.id":         c.ClientID,

		// Reliability: wait for all replicas to acknowledge
		"acks":               "all",
		"enable.idempotence": true,

		"linger.ms":        5,
		"compression.type": "lz4",

		"go.logs.channel.enable": c.EnableLogs,
		"message.max.bytes":      messageMaxBytes,
	}
	c.SASL.ApplyToConfigMap(cfg)
	return cfg
}
