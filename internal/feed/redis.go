package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"interviewprep/internal/redis"

	"go.uber.org/zap"
)

const redisFeedChannel = "feed:changes"

// RedisFeed publishes through redis pub/sub so every instance sees every
// change, and fans received events out through a local Hub.
type RedisFeed struct {
	client *redis.Client
	hub    *Hub
	log    *zap.SugaredLogger
	cancel context.CancelFunc
	ready  chan struct{}
}

// NewRedisFeed subscribes to the shared channel and starts the listener.
func NewRedisFeed(client *redis.Client, log *zap.SugaredLogger) (*RedisFeed, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &RedisFeed{
		client: client,
		hub:    NewHub(),
		log:    log,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
	if err := f.startListener(ctx); err != nil {
		cancel()
		return nil, err
	}
	return f, nil
}

// startListener relays redis messages into the local hub.
func (f *RedisFeed) startListener(ctx context.Context) error {
	pubsub, err := f.client.Subscribe(ctx, redisFeedChannel)
	if err != nil {
		return err
	}
	// wait for the subscription to be confirmed so early publishes are seen
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", redisFeedChannel, err)
	}
	go func() {
		defer pubsub.Close()
		defer close(f.ready)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					f.log.Warnf("feed event decode failed: %v", err)
					continue
				}
				_ = f.hub.Publish(ctx, ev)
			}
		}
	}()
	return nil
}

// Publish broadcasts ev to all instances.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode feed event: %w", err)
	}
	if err := f.client.Publish(ctx, redisFeedChannel, payload); err != nil {
		return fmt.Errorf("publish feed event: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	return f.hub.Subscribe(ctx, filter)
}

func (f *RedisFeed) Close() error {
	f.cancel()
	<-f.ready
	return f.hub.Close()
}
