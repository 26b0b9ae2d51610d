// Package events publishes a measurement event for every recorded reading.
//
// Kafka writes JSON events keyed by device (or source) so one device's events
// stay ordered within a partition. Noop is used when no brokers are
// configured. Publishing is best effort: the dashboard never waits on it and
// failures wrap types.ErrNetworkUnavailable.
package events
