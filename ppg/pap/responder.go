package pap

import (
	"context"
)

// Sink is the minimal surface a response document is delivered through:
// anything with a Send(ctx, doc) method, satisfied both by a
// synchronous in-request writer and an asynchronous notify-URL poster.
type Sink interface {
	Send(ctx context.Context, doc []byte) error
}

// Responder wraps the external send_reply callback: the engine never
// formats XML itself beyond calling the builders in this package, and
// never talks to net/http directly; it hands a built document to a
// Sink.
type Responder struct{}

// Respond sends doc through sink.
func (Responder) Respond(ctx context.Context, sink Sink, doc []byte) error {
	if sink == nil {
		return nil
	}
	return sink.Send(ctx, doc)
}
