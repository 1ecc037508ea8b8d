// Package topology defines how logical message types and destination
// addresses map onto broker exchanges, queues, and bindings.
//
// Two interchangeable variants implement the RoutingTopology contract:
// ConventionalTopology fans publish traffic out through one exchange
// per message type, DirectTopology routes everything through a single
// shared exchange with per-type routing keys. Point-to-point sends
// reach the same destination queue under either variant.
//
// Topologies are deterministic naming and binding functions over an
// already open channel: they know nothing about connection lifetime,
// retries, or channel acquisition, which keeps them testable without a
// live broker.
package topology
