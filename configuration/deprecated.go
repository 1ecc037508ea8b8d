package configuration

import (
	"fmt"
	"time"
)

// The setters below are the historical configuration entry points for
// options that no longer exist. They are kept only so migration tooling
// has a stable member to point at; every call fails.

func removedOptionError(option, replacement, removeInVersion string) error {
	return fmt.Errorf("configuration: the '%s' option has been removed, use %s instead; this member will be removed in version %s", option, replacement, removeInVersion)
}

// SetDequeueTimeout always fails.
//
// Deprecated: dequeueTimeout has been removed. Use the transport's
// circuit breaker wait time option instead. Will be removed in 3.0.0.
func (c *ConnectionConfiguration) SetDequeueTimeout(time.Duration) error {
	return removedOptionError("dequeueTimeout", "the transport's circuit breaker wait time option", "3.0.0")
}

// SetMaxWaitTimeForConfirms always fails.
//
// Deprecated: maxWaitTimeForConfirms has been removed. Publish
// confirmation waits are governed by the publish context deadline.
// Will be removed in 3.0.0.
func (c *ConnectionConfiguration) SetMaxWaitTimeForConfirms(time.Duration) error {
	return removedOptionError("maxWaitTimeForConfirms", "a deadline on the publish context", "3.0.0")
}

// SetPrefetchCount always fails.
//
// Deprecated: prefetchCount has been removed. Use the consumer prefetch
// count option instead. Will be removed in 3.0.0.
func (c *ConnectionConfiguration) SetPrefetchCount(uint16) error {
	return removedOptionError("prefetchCount", "the consumer prefetch count option", "3.0.0")
}

// SetUsePublisherConfirms always fails.
//
// Deprecated: usePublisherConfirms has been removed. Publisher confirms
// are always enabled. Will be removed in 3.0.0.
func (c *ConnectionConfiguration) SetUsePublisherConfirms(bool) error {
	return removedOptionError("usePublisherConfirms", "nothing; publisher confirms are always enabled", "3.0.0")
}
