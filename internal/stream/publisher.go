// Package stream carries engine events to downstream consumers over NATS
// JetStream. Publishing is best-effort: the durable event log in Postgres is
// the source of truth, and a consumer that misses a message re-reads it.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/x3na-dev/x3na/internal/market"
	"github.com/x3na-dev/x3na/internal/observability"
)

const eventStreamName = "MARKET_EVENTS"

// Publisher drains the engine's publish channel and publishes each event
// envelope to market.events.{type}.{round_id}.
type Publisher struct {
	js      jetstream.JetStream
	input   <-chan market.Output
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewPublisher(js jetstream.JetStream, input <-chan market.Output, log zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{js: js, input: input, log: log, metrics: metrics}
}

// Run publishes until the context is cancelled or the channel closes.
// Publish failures are logged and skipped.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out); err != nil {
				p.log.Warn().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Str("type", string(out.Envelope.Type)).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, out market.Output) error {
	data, err := json.Marshal(out.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("market.events.%s", out.Envelope.Type)
	if out.Envelope.RoundID != "" {
		subject = fmt.Sprintf("%s.%s", subject, out.Envelope.RoundID)
	}

	if _, err := p.js.Publish(ctx, subject, data,
		jetstream.WithMsgID(out.Envelope.IdempotencyKey()),
	); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(string(out.Envelope.Type)).Inc()
	}
	return nil
}

// EnsureEventStream creates the outbound event stream if it does not exist.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      eventStreamName,
		Subjects:  []string{"market.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create event stream: %w", err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection with unbounded reconnects and
// returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
