package ota

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kannel-go/ppg/ppg/wina"
)

// Sink is the externally-provided pair of dispatch callbacks:
// dispatch_to_wsp (connection-oriented) and dispatch_to_wsp_unit
// (connectionless). One Sink, two dispatch paths, mirroring a single
// backend with two transport-selecting entry points.
type Sink interface {
	DispatchConnectionOriented(ctx context.Context, ev Event) error
	DispatchConnectionless(ctx context.Context, ev Event) error
}

// PushFlag computes the 3-bit composite header value:
// authenticated | trusted<<1 | last<<2.
func PushFlag(authenticated, trusted, last bool) int {
	n := 0
	if authenticated {
		n |= 1
	}
	if trusted {
		n |= 1 << 1
	}
	if last {
		n |= 1 << 2
	}
	return n
}

// smsActive reports whether credentials/bearer hints should be copied
// onto the outbound WSP event: only when network=GSM and bearer=SMS.
func smsActive(network, bearer string) bool {
	return network == "GSM" && bearer == "SMS"
}

// Dispatcher is the single-consumer OTA worker. Submit enqueues and
// returns immediately; Run drains the queue until ctx is cancelled, at
// which point it stops after the in-flight event.
//
// The channel is generously buffered; a mutex-guarded overflow slice
// absorbs bursts beyond the buffer so Submit never blocks the caller,
// emulating an unbounded FIFO queue without an actual unbounded channel
// (Go channels are fixed-capacity).
type Dispatcher struct {
	sink Sink
	log  zerolog.Logger

	ch chan Event

	mu       sync.Mutex
	overflow []Event
}

// NewDispatcher creates a Dispatcher with the given buffer size.
func NewDispatcher(sink Sink, log zerolog.Logger, bufSize int) *Dispatcher {
	return &Dispatcher{
		sink: sink,
		log:  log.With().Str("component", "ota-dispatcher").Logger(),
		ch:   make(chan Event, bufSize),
	}
}

// Submit enqueues ev for dispatch, never blocking the caller: it tries
// a non-blocking channel send first, falling back to the overflow list.
// While older events are still waiting in the overflow list, new events
// join the end of that list so they cannot overtake them.
func (d *Dispatcher) Submit(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.overflow) == 0 {
		select {
		case d.ch <- ev:
			return
		default:
		}
	}
	d.overflow = append(d.overflow, ev)
}

// drainOverflow moves as much of the overflow list as fits back onto
// the channel. Called by Run between dequeues.
func (d *Dispatcher) drainOverflow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.overflow) > 0 {
		select {
		case d.ch <- d.overflow[0]:
			d.overflow = d.overflow[1:]
		default:
			return
		}
	}
}

// Run drains the event queue until ctx is cancelled. Each event is
// destroyed (dropped) after handling; there is no retry queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		d.drainOverflow()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.ch:
			if err := d.handle(ctx, ev); err != nil {
				d.log.Error().Err(err).Int("kind", int(ev.Kind)).Msg("ota dispatch failed")
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindSessionRequest:
		return d.handleSessionRequest(ctx, ev)
	case KindPush, KindConfirmedPush, KindUnitPush:
		return d.handlePush(ctx, ev)
	case KindPushAbort:
		return d.handlePushAbort(ctx, ev)
	default:
		return fmt.Errorf("ota: unrecognised event kind %d", ev.Kind)
	}
}

func (d *Dispatcher) handleSessionRequest(ctx context.Context, ev Event) error {
	headers := ev.Headers.Clone()
	if headers == nil {
		headers = make(map[string][]string)
	}
	headers.Set("Content-Type", "application/vnd.wap.sia")

	var appIDs []string
	for _, raw := range ev.Headers.Values("X-WAP-Application-Id") {
		normalized, _ := wina.Normalize(raw)
		appIDs = append(appIDs, normalized)
	}

	body := PackSIA(appIDs, ev.ContactPoint)
	out := ev
	out.Headers = headers
	out.Body = body
	return d.sink.DispatchConnectionless(ctx, out)
}

func (d *Dispatcher) handlePush(ctx context.Context, ev Event) error {
	headers := ev.Headers.Clone()
	if headers == nil {
		headers = make(map[string][]string)
	}
	headers.Set("Push-Flag", fmt.Sprintf("%d", PushFlag(ev.Authenticated, ev.Trusted, ev.Last)))

	out := ev
	out.Headers = headers
	if !smsActive(ev.Network, ev.Bearer) {
		out.Username = ""
		out.Password = ""
		out.Network = ""
		out.Bearer = ""
	}

	if ev.Kind == KindUnitPush {
		return d.sink.DispatchConnectionless(ctx, out)
	}
	return d.sink.DispatchConnectionOriented(ctx, out)
}

func (d *Dispatcher) handlePushAbort(ctx context.Context, ev Event) error {
	if !ValidAbortReason(ev.Reason) {
		return fmt.Errorf("ota: invalid push-abort reason %d", ev.Reason)
	}
	return d.sink.DispatchConnectionOriented(ctx, ev)
}
