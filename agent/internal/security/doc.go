// Package security inspects the TLS certificates presented by HTTPS device
// endpoints so an expiring camera certificate is noticed before scrapes
// start failing.
package security
