// Package rabbitmq provides the broker connection plumbing behind the
// transport.
//
// This package includes:
//   - ConnectionManager: dials from a resolved connection configuration
//     and reconnects automatically using the configured retry delay
//   - ChannelPool: channel pooling with idle timeout and an Execute
//     helper that borrows a channel per operation
//   - Metrics: optional Prometheus counters for broker operations
//
// Routing decisions live in the topology package; this package only
// moves channels around.
package rabbitmq
