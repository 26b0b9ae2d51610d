package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/compute"
)

// DefaultAlertThreshold is the asymmetry (°C) above which the dashboard
// raises an alert when the user has not chosen one.
const DefaultAlertThreshold = compute.DefaultAsymmetryHigh

// Settings are the user-editable preferences.
type Settings struct {
	// APIURL is the base URL of the remote measurement API. Empty disables forwarding.
	APIURL string `json:"api_url"`
	// AlertThreshold is the asymmetry in °C that triggers the asymmetry alert.
	AlertThreshold float64 `json:"alert_threshold"`
}

// DefaultSettings returns the settings used before the user saves any.
func DefaultSettings() Settings {
	return Settings{AlertThreshold: DefaultAlertThreshold}
}

// Validate checks the URL scheme and that the threshold is positive.
func (s Settings) Validate() error {
	if s.APIURL != "" {
		u, err := url.Parse(s.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: api_url must be an http(s) URL", types.ErrInvalidInput)
		}
	}
	if !(s.AlertThreshold > 0) {
		return fmt.Errorf("%w: alert_threshold must be positive", types.ErrInvalidInput)
	}
	return nil
}

// Normalized trims whitespace and trailing slashes from the API URL.
func (s Settings) Normalized() Settings {
	s.APIURL = strings.TrimRight(strings.TrimSpace(s.APIURL), "/")
	return s
}

// LoadSettings reads the settings from kv. Missing or unparseable values fall
// back to the matching field of defaults; read errors are logged and treated
// as missing. A saved empty api_url is kept: it means forwarding was disabled.
func LoadSettings(ctx context.Context, kv KV, defaults Settings) Settings {
	s := defaults

	if v, ok, err := kv.Get(ctx, APIURLKey); err != nil {
		slog.Warn("store: api_url unreadable, using default", "err", err)
	} else if ok {
		s.APIURL = v
	}

	if v, ok, err := kv.Get(ctx, AlertThresholdKey); err != nil {
		slog.Warn("store: alert_threshold unreadable, using default", "err", err)
	} else if ok {
		f, perr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if perr != nil || !(f > 0) {
			slog.Warn("store: alert_threshold invalid, using default", "value", v)
		} else {
			s.AlertThreshold = f
		}
	}
	return s
}

// SaveSettings validates s and writes both keys. When the second write fails
// the first key is restored, so storage never holds half of an update.
// Validation failures wrap types.ErrInvalidInput; write failures wrap
// types.ErrStorageUnavailable.
func SaveSettings(ctx context.Context, kv KV, s Settings) error {
	s = s.Normalized()
	if err := s.Validate(); err != nil {
		return err
	}

	prev, hadPrev, err := kv.Get(ctx, APIURLKey)
	if err != nil {
		return asUnavailable(err)
	}
	if err := kv.Set(ctx, APIURLKey, s.APIURL); err != nil {
		return asUnavailable(err)
	}
	if err := kv.Set(ctx, AlertThresholdKey, strconv.FormatFloat(s.AlertThreshold, 'f', -1, 64)); err != nil {
		var rerr error
		if hadPrev {
			rerr = kv.Set(ctx, APIURLKey, prev)
		} else {
			rerr = kv.Delete(ctx, APIURLKey)
		}
		if rerr != nil {
			slog.Error("store: api_url rollback failed, settings partially saved", "err", rerr)
		}
		return asUnavailable(err)
	}
	slog.Info("store: settings saved", "api_url", s.APIURL, "alert_threshold", s.AlertThreshold)
	return nil
}
