// Package ingestion implements the chainio.EventSource backing LiquidCore's
// event stream: a NATS JetStream subscriber that decodes each subject into a
// marketevent.Event and hands it to the core over a channel, following the
// teacher's subjects-per-event-kind, durable-consumer convention.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"LiquidCore/internal/marketevent"
)

// SubjectConfig maps one NATS subject pattern to the market event kind it
// carries, with its own durable consumer so each kind scales independently.
type SubjectConfig struct {
	Subject      string
	Kind         marketevent.Kind
	ConsumerName string
	StreamName   string
}

// DefaultSubjects is the standard cToken-event subject layout: three streams
// grouping the kinds (accrual, supply, debt), one durable consumer per event
// kind.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "ctoken.accrueinterest.>", Kind: marketevent.KindAccrueInterest, ConsumerName: "liquidcore-accrue", StreamName: "CTOKEN_ACCRUAL"},
		{Subject: "ctoken.mint.>", Kind: marketevent.KindMint, ConsumerName: "liquidcore-mint", StreamName: "CTOKEN_SUPPLY"},
		{Subject: "ctoken.redeem.>", Kind: marketevent.KindRedeem, ConsumerName: "liquidcore-redeem", StreamName: "CTOKEN_SUPPLY"},
		{Subject: "ctoken.borrow.>", Kind: marketevent.KindBorrow, ConsumerName: "liquidcore-borrow", StreamName: "CTOKEN_DEBT"},
		{Subject: "ctoken.repayborrow.>", Kind: marketevent.KindRepayBorrow, ConsumerName: "liquidcore-repay", StreamName: "CTOKEN_DEBT"},
		{Subject: "ctoken.liquidateborrow.>", Kind: marketevent.KindLiquidateBorrow, ConsumerName: "liquidcore-liquidate", StreamName: "CTOKEN_DEBT"},
		{Subject: "ctoken.transfer.>", Kind: marketevent.KindTransfer, ConsumerName: "liquidcore-transfer", StreamName: "CTOKEN_SUPPLY"},
	}
}

// EnsureStreams creates the required JetStream streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{Name: "CTOKEN_ACCRUAL", Subjects: []string{"ctoken.accrueinterest.>"}, Storage: jetstream.FileStorage, Retention: jetstream.LimitsPolicy, MaxAge: 72 * time.Hour, Replicas: 1},
		{Name: "CTOKEN_SUPPLY", Subjects: []string{"ctoken.mint.>", "ctoken.redeem.>", "ctoken.transfer.>"}, Storage: jetstream.FileStorage, Retention: jetstream.LimitsPolicy, MaxAge: 72 * time.Hour, Replicas: 1},
		{Name: "CTOKEN_DEBT", Subjects: []string{"ctoken.borrow.>", "ctoken.repayborrow.>", "ctoken.liquidateborrow.>"}, Storage: jetstream.FileStorage, Retention: jetstream.LimitsPolicy, MaxAge: 72 * time.Hour, Replicas: 1},
	}
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("ingestion: create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// ConnectNATS establishes a NATS connection and JetStream context. The
// connection's own reconnect loop (MaxReconnects(-1)) keeps the underlying
// TCP link alive across transient disconnects; registry.Registry.Run's
// backoff loop handles the outer case where Events itself returns, i.e. a
// permanent subscription failure.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("ingestion: nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("ingestion: jetstream: %w", err)
	}
	return nc, js, nil
}

// NATSEventSource implements chainio.EventSource over NATS JetStream
// durable consumers, one per SubjectConfig.
type NATSEventSource struct {
	js        jetstream.JetStream
	subjects  []SubjectConfig
	consumers []jetstream.ConsumeContext
}

// NewNATSEventSource constructs a source bound to js; Events wires the
// durable consumers each time it is called.
func NewNATSEventSource(js jetstream.JetStream, subjects []SubjectConfig) *NATSEventSource {
	return &NATSEventSource{js: js, subjects: subjects}
}

// Events satisfies chainio.EventSource. It creates one durable,
// explicit-ack consumer per configured subject and fans every decoded
// message into a single channel; messages from different consumers are
// interleaved in arrival order, not sorted by (block, logIndex). The
// returned channels close when
// ctx is cancelled or any consumer setup fails irrecoverably; per the
// EventApplier's per-market ordering requirement, callers must not invoke
// Events concurrently for the same market stream.
func (n *NATSEventSource) Events(ctx context.Context) (<-chan marketevent.Event, <-chan error) {
	eventCh := make(chan marketevent.Event, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		for _, cfg := range n.subjects {
			cfg := cfg
			consumer, err := n.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
				Durable:       cfg.ConsumerName,
				FilterSubject: cfg.Subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
				AckWait:       30 * time.Second,
				MaxDeliver:    5,
				DeliverPolicy: jetstream.DeliverAllPolicy,
			})
			if err != nil {
				errCh <- fmt.Errorf("ingestion: create consumer %s: %w", cfg.ConsumerName, err)
				return
			}

			cc, err := consumer.Consume(func(msg jetstream.Msg) {
				evt, err := decode(cfg.Kind, msg.Data())
				if err != nil {
					msg.Nak()
					return
				}
				select {
				case eventCh <- evt:
					msg.Ack()
				case <-ctx.Done():
					msg.Nak()
				}
			})
			if err != nil {
				errCh <- fmt.Errorf("ingestion: consume %s: %w", cfg.ConsumerName, err)
				return
			}
			n.consumers = append(n.consumers, cc)
		}

		<-ctx.Done()
	}()

	return eventCh, errCh
}

// Stop halts every consumer started by the most recent Events call.
func (n *NATSEventSource) Stop() {
	for _, cc := range n.consumers {
		cc.Stop()
	}
	n.consumers = nil
}
