package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const deliverTimeout = 10 * time.Second

// httpPayload is the body posted to "http" webhooks.
type httpPayload struct {
	Event string `json:"event"`
	Alert *Alert `json:"alert"`
}

// teamsCard is a legacy Office 365 connector MessageCard.
type teamsCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	ThemeColor string `json:"themeColor"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// renderers build the request body for each webhook type.
var renderers = map[string]func(*Alert) any{
	"slack": func(a *Alert) any {
		return map[string]string{"text": fmt.Sprintf("%s %s *%s* on `%s`: %s",
			severityLabel(a.Severity), stateLabel(a.State), a.RuleName, a.DeviceKey, a.Message)}
	},
	"teams": func(a *Alert) any {
		return teamsCard{
			Type:       "MessageCard",
			Context:    "http://schema.org/extensions",
			ThemeColor: severityColor(a.Severity),
			Summary:    a.RuleName,
			Title:      fmt.Sprintf("thermowatch %s: %s on %s", a.State, a.RuleName, a.DeviceKey),
			Text:       a.Message,
		}
	},
	"http": func(a *Alert) any {
		return httpPayload{Event: "thermowatch.alert." + a.State, Alert: a}
	},
}

// deliver posts a to every configured webhook. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	e.mu.Lock()
	targets := e.webhooks
	e.mu.Unlock()

	for _, wh := range targets {
		url := wh.URL()
		if url == "" {
			continue
		}
		render, ok := renderers[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		body, err := json.Marshal(render(a))
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

func (e *Engine) post(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func stateLabel(s string) string {
	if s == "resolved" {
		return "RESOLVED"
	}
	return "FIRING"
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	}
	return "[INFO]"
}

// severityColor matches the dashboard's risk palette.
func severityColor(s string) string {
	switch s {
	case "critical":
		return "D32F2F"
	case "warning":
		return "F9A825"
	}
	return "2E7D32"
}
