package events

import "context"

// Publisher delivers domain events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }

func (NopPublisher) Close() error { return nil }
