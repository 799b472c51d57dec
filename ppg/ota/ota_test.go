package ota

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushFlagAllCombinations(t *testing.T) {
	cases := []struct {
		auth, trusted, last bool
		want                int
	}{
		{false, false, false, 0},
		{true, false, false, 1},
		{false, true, false, 2},
		{false, false, true, 4},
		{true, true, false, 3},
		{true, false, true, 5},
		{false, true, true, 6},
		{true, true, true, 7},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, PushFlag(c.auth, c.trusted, c.last))
	}
}

func TestPackContactPointRoundTripsLength(t *testing.T) {
	cp := ContactPoint{
		BearerIncluded: true,
		PortIncluded:   true,
		BearerType:     GSMCSDIPv4,
		Port:           9200,
		IPAddress:      []byte{192, 0, 2, 1},
	}
	packed := cp.Pack()
	n, err := ParseContactPointLength(packed)
	require.NoError(t, err)
	assert.Equal(t, len(cp.IPAddress), n)
	assert.Equal(t, byte(0x03), packed[1])
	assert.Equal(t, GSMCSDIPv4, packed[2])
}

func TestPackSIAContainsContactPoint(t *testing.T) {
	cp := ContactPoint{BearerIncluded: true, PortIncluded: true, BearerType: GSMCSDIPv4, Port: 9200, IPAddress: []byte{10, 0, 0, 1}}
	body := PackSIA([]string{"1"}, cp)
	assert.NotEmpty(t, body)
}

func TestValidAbortReason(t *testing.T) {
	assert.True(t, ValidAbortReason(ReasonUSERREQ))
	assert.False(t, ValidAbortReason(AbortReason(0xFF)))
}

type fakeSink struct {
	mu          sync.Mutex
	coEvents    []Event
	clessEvents []Event
}

func (f *fakeSink) DispatchConnectionOriented(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coEvents = append(f.coEvents, ev)
	return nil
}

func (f *fakeSink) DispatchConnectionless(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clessEvents = append(f.clessEvents, ev)
	return nil
}

func (f *fakeSink) snapshot() (co, cless int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.coEvents), len(f.clessEvents)
}

func runDispatcher(t *testing.T, d *Dispatcher) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return cancel
}

func TestDispatcherUnitPushGoesConnectionless(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zerolog.Nop(), 8)
	cancel := runDispatcher(t, d)
	defer cancel()

	d.Submit(Event{Kind: KindUnitPush, Headers: http.Header{}})

	require.Eventually(t, func() bool {
		_, cless := sink.snapshot()
		return cless == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcherPushGoesConnectionOriented(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zerolog.Nop(), 8)
	cancel := runDispatcher(t, d)
	defer cancel()

	d.Submit(Event{Kind: KindPush, Headers: http.Header{}})

	require.Eventually(t, func() bool {
		co, _ := sink.snapshot()
		return co == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcherSMSHintsOnlyCopiedWhenActive(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zerolog.Nop(), 8)
	cancel := runDispatcher(t, d)
	defer cancel()

	d.Submit(Event{Kind: KindPush, Headers: http.Header{}, Network: "GSM", Bearer: "IP", Username: "u", Password: "p"})

	require.Eventually(t, func() bool {
		co, _ := sink.snapshot()
		return co == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Empty(t, sink.coEvents[0].Username)
}

func TestDispatcherSessionRequestPacksSIA(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zerolog.Nop(), 8)
	cancel := runDispatcher(t, d)
	defer cancel()

	h := http.Header{}
	h.Add("X-WAP-Application-Id", "push.sia")
	d.Submit(Event{Kind: KindSessionRequest, Headers: h, ContactPoint: ContactPoint{IPAddress: []byte{1, 2, 3, 4}}})

	require.Eventually(t, func() bool {
		_, cless := sink.snapshot()
		return cless == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "application/vnd.wap.sia", sink.clessEvents[0].Headers.Get("Content-Type"))
	assert.NotEmpty(t, sink.clessEvents[0].Body)
}

func TestDispatcherRejectsInvalidAbortReason(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zerolog.Nop(), 8)
	err := d.handle(context.Background(), Event{Kind: KindPushAbort, Reason: AbortReason(0x01)})
	require.Error(t, err)
}

func TestDispatcherOverflowDrains(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zerolog.Nop(), 1)

	for i := 0; i < 10; i++ {
		d.Submit(Event{Kind: KindUnitPush, Headers: http.Header{}})
	}

	cancel := runDispatcher(t, d)
	defer cancel()

	require.Eventually(t, func() bool {
		_, cless := sink.snapshot()
		return cless == 10
	}, 2*time.Second, 5*time.Millisecond)
}
