// Package conclusion produces the plain-text report shown under a
// measurement.
//
// The compute engine always renders a rule-based conclusion. A Provider can
// replace it with a model-written one after the measurement is recorded; when
// the provider is off or fails, the rule-based text stays.
package conclusion
