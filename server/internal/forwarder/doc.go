// Package forwarder delivers manual readings to the remote measurement API.
//
// The remote API is a collaborator, not a dependency: local metrics stay
// authoritative, failures are logged and swallowed, and an empty base URL
// turns forwarding off. A successful response may carry the remote side's own
// analysis, kept as Last() for the dashboard only.
package forwarder
