package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// SyncRequest is the payload of a machine-driven sync trigger.
type SyncRequest struct {
	Account string `json:"account"`
}

// SyncHandler runs one sync pass for the named account.
type SyncHandler func(ctx context.Context, account string) error

// SyncSubscriber consumes sync requests from JetStream and hands them to
// the handler. One request maps to one full account sync, so the ack wait
// has to cover a whole pass.
type SyncSubscriber struct {
	js       jetstream.JetStream
	handler  SyncHandler
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewSyncSubscriber(js jetstream.JetStream, handler SyncHandler, log zerolog.Logger) *SyncSubscriber {
	return &SyncSubscriber{
		js:      js,
		handler: handler,
		log:     log,
	}
}

// Subscribe creates the durable consumer and starts processing.
func (s *SyncSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, SyncStream, jetstream.ConsumerConfig{
		Durable:       "postrack-sync-trigger",
		FilterSubject: SyncRequestSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create sync consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var req SyncRequest
		if err := json.Unmarshal(msg.Data(), &req); err != nil || req.Account == "" {
			s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("malformed sync request, dropping")
			msg.Ack() // redelivery cannot fix a bad payload
			return
		}

		if err := s.handler(ctx, req.Account); err != nil {
			s.log.Error().Err(err).Str("account", req.Account).Msg("sync request failed")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume sync requests: %w", err)
	}

	s.consumer = cc
	s.log.Info().Str("subject", SyncRequestSubject).Msg("subscribed to sync requests")
	return nil
}

// Stop gracefully stops the consumer.
func (s *SyncSubscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.log.Info().Msg("sync subscriber stopped")
}
