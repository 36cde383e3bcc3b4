// Package notify delivers operator notifications about action outcomes
// and degraded conditions.
package notify

import "context"

// Notifier delivers a message to the operator channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop is a Notifier that discards everything; used when no operator
// channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
