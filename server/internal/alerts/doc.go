// Package alerts implements the rule evaluation engine and webhook delivery
// for thermowatch alerting. Rules are conditions over measurement metrics
// ("asymmetry >= 0.8", "risk == high") evaluated per device; webhooks are
// delivered to Slack, Teams or generic HTTP targets.
//
// Besides configured rules the engine always carries asymmetry_threshold,
// driven by the alert threshold the user saves in settings.
package alerts
