// Package scraper reads zone temperatures from the devices an agent is
// configured with.
//
// Two source types exist:
//   - prometheus: GET the device's metrics page and read the
//     thermowatch_zone_temperature_celsius{side,zone} gauges (prometheus.go)
//   - simulated: a mock eight-zone sensor from pkg/sim (simulated.go)
//
// Device credentials (API key, bearer token, basic auth) are injected by the
// shared authRoundTripper in base.go. New(config.Source) returns the Scraper.
package scraper
