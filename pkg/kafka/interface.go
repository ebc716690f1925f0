// pkg/kafka/interface.go
package kafka

import "context"

// Producer publishes messages to Kafka.
type Producer interface {
	// Publish sends one message to topic. Key may be nil.
	Publish(ctx context.Context, topic string, key, value []byte) error

	// Ping verifies the cluster is reachable (used by readiness probes).
	Ping(ctx context.Context) error

	// Close releases the underlying client.
	Close() error
}
