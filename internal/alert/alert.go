// Package alert delivers operator alerts for failed extractions.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/config"
	"github.com/cpm-tools/corvil-extract/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSchemaMismatch AlertType = "schema_mismatch"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType        `json:"type"`
	Severity  string           `json:"severity"`
	ClassID   string           `json:"class_id"`
	Window    model.TimeWindow `json:"window"`
	Message   string           `json:"message"`
	Details   map[string]any   `json:"details,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// SchemaMismatch builds the alert raised when a canary header does not match.
func SchemaMismatch(classID string, w model.TimeWindow, details map[string]any) Alert {
	return Alert{
		Type:      AlertSchemaMismatch,
		Severity:  "high",
		ClassID:   classID,
		Window:    w,
		Message:   fmt.Sprintf("ERROR while extracting:\n%s %s", classID, w.String()),
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// Alerter sends one alert.
type Alerter interface {
	Send(ctx context.Context, a Alert) error
}

// Multi fans an alert out to every alerter. Each failure is logged and the
// failures are returned joined.
type Multi []Alerter

// Send delivers a to every alerter, continuing past failures.
func (m Multi) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, al := range m {
		if err := al.Send(ctx, a); err != nil {
			zap.L().Error("alert: failed to send alert",
				zap.String("type", string(a.Type)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards alerts.
type Nop struct{}

// Send implements Alerter.
func (Nop) Send(context.Context, Alert) error { return nil }

// FromConfig builds the alerter chain for cfg: email when an SMTP address is
// set, plus a webhook when a URL is set.
func FromConfig(cfg config.AlertConfig) Alerter {
	var m Multi
	if cfg.SMTPAddr != "" {
		m = append(m, NewEmail(cfg))
	}
	if cfg.WebhookURL != "" {
		m = append(m, NewWebhook(cfg.WebhookURL))
	}
	if len(m) == 0 {
		return Nop{}
	}
	return m
}
