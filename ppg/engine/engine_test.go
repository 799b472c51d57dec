package engine

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannel-go/ppg/ppg/clock"
	"github.com/kannel-go/ppg/ppg/identmap"
	"github.com/kannel-go/ppg/ppg/intake"
	"github.com/kannel-go/ppg/ppg/ota"
	"github.com/kannel-go/ppg/ppg/transcoder"
)

type capturingSink struct {
	mu  sync.Mutex
	doc []byte
}

func (c *capturingSink) Send(_ context.Context, doc []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = doc
	return nil
}

func (c *capturingSink) body() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.doc)
}

type fakeOTASink struct {
	mu          sync.Mutex
	coEvents    []ota.Event
	clessEvents []ota.Event
}

func (f *fakeOTASink) DispatchConnectionOriented(_ context.Context, ev ota.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coEvents = append(f.coEvents, ev)
	return nil
}

func (f *fakeOTASink) DispatchConnectionless(_ context.Context, ev ota.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clessEvents = append(f.clessEvents, ev)
	return nil
}

func (f *fakeOTASink) counts() (co, cless int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.coEvents), len(f.clessEvents)
}

func (f *fakeOTASink) lastCless() ota.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clessEvents[len(f.clessEvents)-1]
}

func passthrough(body []byte) ([]byte, error) { return body, nil }

func newTestEngine(t *testing.T) (*Engine, *fakeOTASink, clock.Clock) {
	sink := &fakeOTASink{}
	disp := ota.NewDispatcher(sink, zerolog.Nop(), 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go disp.Run(ctx)

	tc := transcoder.NewDefault(passthrough, passthrough)
	clk := clock.NewMock(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))

	e := New(Config{
		Transcoder:  tc,
		Dispatcher:  disp,
		Identifiers: identmap.New(),
		Clock:       clk,
		Log:         zerolog.Nop(),
		Sender:      SenderIdentity{OfficialName: "Test PPG", ProductName: "ppgd", Version: "0.1"},
	})
	return e, sink, clk
}

func pushMsg(piPushID, deliveryMethod, contentType string, body []byte) intake.PushMessage {
	return intake.PushMessage{
		Control: intake.PAPControlEntity{
			PiPushID:       piPushID,
			DeliveryMethod: deliveryMethod,
			Address:        "WAPPUSH=client-" + piPushID + "/TYPE=PLMN@ppg",
		},
		Payload: intake.Part{
			ContentType: contentType,
			Body:        body,
		},
		RemoteAddr: "198.51.100.7:51234",
		LocalAddr:  "127.0.0.1",
		LocalPort:  9200,
	}
}

func TestHandlePushMessage_UnconfirmedUnitPushAccepted(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	sinkReply := &capturingSink{}
	msg := pushMsg("p1", "unconfirmed", "text/plain", []byte("hi"))
	msg.ReplySink = sinkReply

	ok := e.HandlePushMessage(context.Background(), msg)
	assert.True(t, ok)
	assert.Contains(t, sinkReply.body(), `code="1001"`)

	require.Eventually(t, func() bool {
		_, cless := sink.counts()
		return cless == 1
	}, time.Second, 5*time.Millisecond)

	ev := sink.lastCless()
	assert.Equal(t, "0", ev.Headers.Get("Push-Flag"))
}

func TestHandlePushMessage_WMLContentCompiledBeforeDispatch(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	e.transcoder = transcoder.NewDefault(upperCompiler, passthrough)

	msg := pushMsg("p3", "unconfirmed", "text/vnd.wap.wml", []byte("<wml/>"))
	reply := &capturingSink{}
	msg.ReplySink = reply

	ok := e.HandlePushMessage(context.Background(), msg)
	assert.True(t, ok)
	assert.Contains(t, reply.body(), `code="1001"`)

	require.Eventually(t, func() bool {
		_, cless := sink.counts()
		return cless == 1
	}, time.Second, 5*time.Millisecond)

	ev := sink.lastCless()
	assert.Equal(t, "application/vnd.wap.wmlc", ev.Headers.Get("Content-Type"))
	assert.Equal(t, []byte("<WML/>"), ev.Body)
}

func upperCompiler(body []byte) ([]byte, error) {
	return bytes.ToUpper(body), nil
}

func TestHandlePushMessage_DuplicatePiPushIDRejected(t *testing.T) {
	e, sink, _ := newTestEngine(t)

	first := pushMsg("p1", "unconfirmed", "text/plain", []byte("hi"))
	first.ReplySink = &capturingSink{}
	e.HandlePushMessage(context.Background(), first)

	second := pushMsg("p1", "unconfirmed", "text/plain", []byte("hi"))
	secondReply := &capturingSink{}
	second.ReplySink = secondReply

	ok := e.HandlePushMessage(context.Background(), second)
	assert.False(t, ok)
	assert.Contains(t, secondReply.body(), `code="2007"`)

	require.Eventually(t, func() bool {
		_, cless := sink.counts()
		return cless == 1
	}, time.Second, 5*time.Millisecond)
	_, cless := sink.counts()
	assert.Equal(t, 1, cless)
}

func TestHandlePushMessage_PastDeliveryDeadlineExpires(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	msg := pushMsg("p4", "unconfirmed", "text/plain", []byte("hi"))
	msg.Control.DeliverBeforeTimestamp = "2000-01-01T00:00:00Z"
	reply := &capturingSink{}
	msg.ReplySink = reply

	ok := e.HandlePushMessage(context.Background(), msg)
	assert.False(t, ok)
	assert.Contains(t, reply.body(), `code="2004"`)

	co, cless := sink.counts()
	assert.Equal(t, 0, co)
	assert.Equal(t, 0, cless)
}

func TestHandlePushMessage_UnrecognisedBearerRejected(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	msg := pushMsg("p6", "unconfirmed", "text/plain", []byte("hi"))
	msg.Control.Bearer = "Bluetooth"
	reply := &capturingSink{}
	msg.ReplySink = reply

	ok := e.HandlePushMessage(context.Background(), msg)
	assert.False(t, ok)
	assert.Contains(t, reply.body(), `code="2005"`)

	co, cless := sink.counts()
	assert.Equal(t, 0, co)
	assert.Equal(t, 0, cless)
}

func TestHandlePushMessage_ConfirmedDeliveryViaSessionRequest(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	msg := pushMsg("p5", "confirmed", "text/plain", []byte("hi"))
	reply := &capturingSink{}
	msg.ReplySink = reply

	ok := e.HandlePushMessage(context.Background(), msg)
	assert.True(t, ok)
	assert.Contains(t, reply.body(), `code="1001"`)

	require.Eventually(t, func() bool {
		_, cless := sink.counts()
		return cless == 1
	}, time.Second, 5*time.Millisecond)

	req := sink.lastCless()
	assert.Equal(t, "application/vnd.wap.sia", req.Headers.Get("Content-Type"))

	e.HandleInternalEvent(context.Background(), ota.InboundEvent{
		Kind:       ota.KindConnectInd,
		SessionID:  7,
		RemoteAddr: msg.Control.Address,
	})

	require.Eventually(t, func() bool {
		co, _ := sink.counts()
		return co == 1
	}, time.Second, 5*time.Millisecond)

	e.HandleInternalEvent(context.Background(), ota.InboundEvent{
		Kind:      ota.KindConfirmedPushCnf,
		SessionID: 7,
		PushID:    1,
	})

	_, ok = e.piPushIndex["p5"]
	assert.False(t, ok)
}
