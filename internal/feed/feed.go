// Package feed delivers row-change notifications to interested subscribers.
// Delivery is best effort: slow consumers drop events and nothing is
// replayed across reconnects.
package feed

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	TableAnalyses  = "interview_analyses"
	TableQuestions = "interview_questions"
)

// Event describes one changed row.
type Event struct {
	Table  string    `json:"table"`
	Type   EventType `json:"type"`
	UserID int64     `json:"user_id"`
	RowID  string    `json:"row_id"`
	At     time.Time `json:"at"`
}

// Filter selects events; zero fields match anything.
type Filter struct {
	Table  string
	Type   EventType
	UserID int64
}

func (f Filter) Match(ev Event) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.Type != "" && f.Type != ev.Type {
		return false
	}
	if f.UserID != 0 && f.UserID != ev.UserID {
		return false
	}
	return true
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
}

// Feed is a transport able to both publish and subscribe.
type Feed interface {
	Publisher
	Subscriber
	Close() error
}

// Subscription is the cancellation handle returned by Subscribe.
type Subscription struct {
	events chan Event
	once   sync.Once
	cancel func()
}

// Events yields matching events until the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close stops delivery and closes the events channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Observer reacts to events. Implementations must not block for long.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Watch feeds every event matching f to obs until ctx ends or the returned
// cancel func is called.
func Watch(ctx context.Context, sub Subscriber, f Filter, obs Observer) (func(), error) {
	s, err := sub.Subscribe(ctx, f)
	if err != nil {
		return nil, err
	}
	go func() {
		for ev := range s.Events() {
			obs.OnEvent(ev)
		}
	}()
	return s.Close, nil
}

// Nop discards events and never delivers any.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
