package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/thermowatch/thermowatch/server/internal/compute"
	"github.com/thermowatch/thermowatch/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1

	// AsymmetryRuleName is the built-in rule driven by the user's alert threshold.
	AsymmetryRuleName = "asymmetry_threshold"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	DeviceKey  string     `json:"device_key"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against measurement metrics and delivers
// webhook notifications when rules fire or resolve.
//
// Each measurement is evaluated under a device key (the sensor device ID, or
// the reading source for browser submissions) so one noisy device does not
// mask or resolve another's alerts.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu             sync.Mutex
	rules          []config.AlertRule
	webhooks       []config.WebhookConfig
	alertThreshold float64

	active    map[string]*Alert    // key: "ruleName:deviceKey"
	lastFire  map[string]time.Time // last fire time per key (for cooldown)
	history   []*Alert             // recently resolved alerts
	client    *http.Client
	now       func() time.Time
	deliverFn func(*Alert) // injectable for tests
}

// New creates an Engine from the server alert configuration and the user's
// asymmetry alert threshold. A threshold <= 0 disables the built-in rule.
func New(cfg config.AlertsConfig, alertThreshold float64) *Engine {
	e := &Engine{
		alertThreshold: alertThreshold,
		active:         make(map[string]*Alert),
		lastFire:       make(map[string]time.Time),
		client:         &http.Client{Timeout: 10 * time.Second},
		now:            time.Now,
	}
	e.deliverFn = e.deliver
	e.SetConfig(cfg)
	return e
}

// SetConfig replaces rules and webhooks. Rules with unparseable conditions
// are dropped with a warning. Alerts already firing for removed rules stay
// listed until they resolve.
func (e *Engine) SetConfig(cfg config.AlertsConfig) {
	rules := make([]config.AlertRule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if !validCondition(r.Condition) {
			slog.Warn("alerts: ignoring rule with invalid condition",
				"rule", r.Name, "condition", r.Condition)
			continue
		}
		rules = append(rules, r)
	}

	e.mu.Lock()
	e.rules = rules
	e.webhooks = cfg.Webhooks
	e.mu.Unlock()
	slog.Debug("alerts: config applied", "rules", len(rules), "webhooks", len(cfg.Webhooks))
}

// SetAlertThreshold updates the asymmetry threshold of the built-in rule.
func (e *Engine) SetAlertThreshold(v float64) {
	e.mu.Lock()
	e.alertThreshold = v
	e.mu.Unlock()
}

// effectiveRules returns the configured rules plus the built-in rule.
// Caller must hold e.mu.
func (e *Engine) effectiveRules() []config.AlertRule {
	rules := make([]config.AlertRule, 0, len(e.rules)+1)
	if e.alertThreshold > 0 {
		rules = append(rules, config.AlertRule{
			Name:      AsymmetryRuleName,
			Condition: "asymmetry >= " + strconv.FormatFloat(e.alertThreshold, 'f', -1, 64),
			Severity:  "warning",
			// Fires on every measurement at or above the threshold.
			Cooldown: time.Nanosecond,
		})
	}
	return append(rules, e.rules...)
}

// Evaluate tests all rules against m for deviceKey.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
// It returns the alerts that fired during this call.
func (e *Engine) Evaluate(deviceKey string, m compute.Metrics) []Alert {
	now := e.now()

	e.mu.Lock()
	rules := e.effectiveRules()
	var fired, notify []Alert

	for _, rule := range rules {
		key := rule.Name + ":" + deviceKey
		fires, value := evalCondition(rule.Condition, m)

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if now.Sub(e.lastFire[key]) < cooldown {
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:        fmt.Sprintf("%s:%s:%d", rule.Name, deviceKey, now.UnixNano()),
				RuleName:  rule.Name,
				DeviceKey: deviceKey,
				Severity:  sev,
				Value:     value,
				Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
					sev, rule.Name, deviceKey, rule.Condition, value),
				FiredAt: now,
				State:   "firing",
			}
			e.active[key] = a
			e.lastFire[key] = now
			fired = append(fired, *a)
			notify = append(notify, *a)

			slog.Warn("alert fired",
				"rule", rule.Name,
				"device", deviceKey,
				"value", value,
				"severity", sev,
			)
			continue
		}

		if a, ok := e.active[key]; ok && a.State == "firing" {
			resolved := now
			a.State = "resolved"
			a.ResolvedAt = &resolved
			delete(e.active, key)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			notify = append(notify, *a)

			slog.Info("alert resolved",
				"rule", rule.Name,
				"device", deviceKey,
			)
		}
	}
	e.mu.Unlock()

	for i := range notify {
		go e.deliverFn(&notify[i])
	}
	return fired
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// FiringCount returns the number of alerts currently firing.
func (e *Engine) FiringCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
