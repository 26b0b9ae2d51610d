package conclusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/thermowatch/thermowatch/server/internal/compute"
	"github.com/thermowatch/thermowatch/server/internal/config"
)

// Provider writes a conclusion for an analysed measurement.
type Provider interface {
	// Name identifies the provider in API responses and logs.
	Name() string
	Conclude(ctx context.Context, a compute.Analysis) (string, error)
}

// RuleBasedName labels conclusions rendered by compute.Conclusion.
const RuleBasedName = "rules"

const systemPrompt = "You are an assistant that explains breast thermography measurements " +
	"to a patient in plain language. Summarize the readings, name any deviations, " +
	"and give a recommendation that matches the risk level. Keep it under 150 words. " +
	"Always state that this system is not a medical diagnostic device and does not " +
	"replace a consultation with a doctor."

// ErrEmptyResponse is returned when the model answered without any text.
var ErrEmptyResponse = errors.New("conclusion: empty model response")

// FromConfig returns the provider selected by cfg, or nil when conclusions
// stay rule-based. An anthropic provider without an API key in the
// environment is switched off with a warning.
func FromConfig(cfg config.ConclusionConfig) Provider {
	switch cfg.Provider {
	case "anthropic":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			slog.Warn("conclusion: api key not set, using rule-based conclusions", "env", cfg.APIKeyEnv)
			return nil
		}
		return NewAnthropic(key, cfg)
	default:
		return nil
	}
}

// Anthropic asks a Claude model for the conclusion.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropic returns a provider authenticating with apiKey. cfg.BaseURL
// overrides the API endpoint when set.
func NewAnthropic(apiKey string, cfg config.ConclusionConfig) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultConclusionMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(maxTokens),
		timeout:   cfg.Timeout,
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

// Conclude sends the metrics to the Messages API and returns the joined text
// blocks of the reply.
func (p *Anthropic) Conclude(ctx context.Context, a compute.Analysis) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(Prompt(a))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("conclusion: anthropic request: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Prompt renders the measurement the model is asked to explain.
func Prompt(a compute.Analysis) string {
	m := a.Metrics
	var b strings.Builder
	b.WriteString("Breast thermography measurement:\n")
	fmt.Fprintf(&b, "- average left temperature: %s °C\n", compute.FormatTemp(m.AvgLeft))
	fmt.Fprintf(&b, "- average right temperature: %s °C\n", compute.FormatTemp(m.AvgRight))
	fmt.Fprintf(&b, "- asymmetry: %s °C\n", compute.FormatAsymmetry(m.Asymmetry))
	fmt.Fprintf(&b, "- maximum temperature: %s °C\n", compute.FormatTemp(m.MaxTemp))
	fmt.Fprintf(&b, "- risk level: %s\n", m.Risk)
	if len(a.Anomalies) == 0 {
		b.WriteString("- anomalous zones: none\n")
	} else {
		names := make([]string, 0, len(a.Anomalies))
		for _, z := range a.Anomalies {
			names = append(names, z.String())
		}
		fmt.Fprintf(&b, "- anomalous zones: %s\n", strings.Join(names, "; "))
	}
	return b.String()
}
