// Package push keeps a publish/subscribe channel to the backend open and
// feeds ride updates from it into the reconciler.
package push

import "context"

// Handler receives the raw body of one message on a topic.
type Handler func(body []byte)

// Channel is a persistent subscription channel with an explicit lifecycle.
//
// Subscribe registers a topic handler; registrations survive reconnects and
// are re-subscribed each time the channel is re-established. Activate starts
// establishing the channel (a second call only adds callbacks), onReady runs
// after each successful establishment and onFailure after each failure to
// establish or later channel error. Deactivate tears the channel down and is
// safe to call more than once.
type Channel interface {
	Activate(ctx context.Context, onReady func(), onFailure func(error))
	Subscribe(topic string, h Handler)
	Unsubscribe(topic string)
	Deactivate()
	Connected() bool
}
