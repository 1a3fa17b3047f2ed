package delivery

import (
	"context"
	"encoding/json"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/config"
	"github.com/cpm-tools/corvil-extract/internal/model"
)

// ManifestEvent is published once per manifest record.
type ManifestEvent struct {
	Type     string               `json:"type"`
	RunID    string               `json:"run_id,omitempty"`
	Market   string               `json:"market"`
	Extract  string               `json:"extract"`
	Record   model.ManifestRecord `json:"record"`
	Manifest string               `json:"manifest"`
}

// amqpChannel is the part of *amqp.Channel used for publishing.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpDialFunc func(url string) (amqpChannel, io.Closer, error)

func dialAMQP(url string) (amqpChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, nil, err
	}
	return ch, conn, nil
}

// Notifier announces written manifests on an AMQP exchange.
type Notifier struct {
	cfg  config.NotifyConfig
	dial amqpDialFunc
}

// NewNotifier creates a Notifier. It is a no-op when no URL is configured.
func NewNotifier(cfg config.NotifyConfig) *Notifier {
	return &Notifier{cfg: cfg, dial: dialAMQP}
}

// Enabled reports whether a broker URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.cfg.AMQPURL != ""
}

// Notify publishes one persistent JSON message per event.
func (n *Notifier) Notify(ctx context.Context, events []ManifestEvent) error {
	if !n.Enabled() || len(events) == 0 {
		return nil
	}

	ch, conn, err := n.dial(n.cfg.AMQPURL)
	if err != nil {
		return eris.Wrap(err, "delivery: amqp dial")
	}
	defer conn.Close() //nolint:errcheck
	defer ch.Close()   //nolint:errcheck

	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return eris.Wrap(err, "delivery: marshal event")
		}
		err = ch.PublishWithContext(ctx, n.cfg.Exchange, n.cfg.RoutingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
		if err != nil {
			return eris.Wrapf(err, "delivery: publish %s", ev.Record.ArtifactName)
		}
		zap.L().Info("amqp: manifest announced",
			zap.String("artifact", ev.Record.ArtifactName),
			zap.String("routing_key", n.cfg.RoutingKey),
		)
	}
	return nil
}
