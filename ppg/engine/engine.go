// Package engine implements the PPG engine: it ingests PAP push
// messages from HTTP intake, drives the push/session machine tables,
// handles OTA-originated indications, and emits PI responses.
package engine

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kannel-go/ppg/ppg/clock"
	"github.com/kannel-go/ppg/ppg/identmap"
	"github.com/kannel-go/ppg/ppg/intake"
	"github.com/kannel-go/ppg/ppg/machine"
	"github.com/kannel-go/ppg/ppg/ota"
	"github.com/kannel-go/ppg/ppg/pap"
	"github.com/kannel-go/ppg/ppg/transcoder"
	"github.com/kannel-go/ppg/ppg/tuple"
)

// CapabilityChecker decides whether negotiated capabilities are
// acceptable given what the PI assumed. Defaults to a stub that always
// returns true, exposed as a hook so callers can override it with real
// capability negotiation logic.
type CapabilityChecker func(assumed, negotiated machine.Capabilities) bool

// DefaultCapabilityChecker always reports "capable".
func DefaultCapabilityChecker(machine.Capabilities, machine.Capabilities) bool {
	return true
}

// SenderIdentity is echoed into every PAP response document.
type SenderIdentity struct {
	OfficialName string
	ProductName  string
	Version      string
}

func (s SenderIdentity) String() string {
	return pap.SenderName(s.OfficialName, s.ProductName, s.Version)
}

// Config configures an Engine.
type Config struct {
	Transcoder        *transcoder.Transcoder
	Dispatcher        *ota.Dispatcher
	Identifiers       *identmap.Maps
	Clock             clock.Clock
	Log               zerolog.Logger
	Sender            SenderIdentity
	CapabilityChecker CapabilityChecker // nil -> DefaultCapabilityChecker
}

// Engine is the single struct owning every sub-component the ingest and
// OTA-event paths need, shaped after a pool-owning client that holds
// its backend, reconnect manager and identifiers behind one boundary.
type Engine struct {
	transcoder  *transcoder.Transcoder
	dispatcher  *ota.Dispatcher
	responder   pap.Responder
	identifiers *identmap.Maps
	clk         clock.Clock
	log         zerolog.Logger
	sender      SenderIdentity

	CapabilityChecker CapabilityChecker

	// ReevaluateTicker, when non-nil at the time RunOTAIn starts, makes
	// the RunOTAIn loop re-walk held pushes on every tick and re-run the
	// deadline test. This is a deliberate behavior change, off by default so
	// that, absent an explicit opt-in, held pushes are never woken.
	ReevaluateTicker *time.Ticker

	pushIDs machine.PushIDAllocator

	sessions     map[string]*machine.SessionMachine // keyed by pi_client_address
	sessionsByID map[int64]*machine.SessionMachine  // keyed by WSP session_id, once bound
	unitPushes   map[int64]*machine.PushMachine      // connectionless, keyed by push_id
	piPushIndex  map[string]*machine.PushMachine      // keyed by pi_push_id (invariant 3)

	ingest chan intake.PushMessage
	events chan ota.InboundEvent
}

// New creates an Engine with empty registries.
func New(cfg Config) *Engine {
	checker := cfg.CapabilityChecker
	if checker == nil {
		checker = DefaultCapabilityChecker
	}

	return &Engine{
		transcoder:        cfg.Transcoder,
		dispatcher:        cfg.Dispatcher,
		identifiers:       cfg.Identifiers,
		clk:               cfg.Clock,
		log:               cfg.Log.With().Str("component", "engine").Logger(),
		sender:            cfg.Sender,
		CapabilityChecker: checker,

		sessions:     make(map[string]*machine.SessionMachine),
		sessionsByID: make(map[int64]*machine.SessionMachine),
		unitPushes:   make(map[int64]*machine.PushMachine),
		piPushIndex:  make(map[string]*machine.PushMachine),

		ingest: make(chan intake.PushMessage, 256),
		events: make(chan ota.InboundEvent, 256),
	}
}

// Submit enqueues a PushMessage for processing by RunOTAIn. Used by the
// PI-intake task; never blocks the caller for long.
func (e *Engine) Submit(msg intake.PushMessage) {
	e.ingest <- msg
}

// SubmitOTAEvent enqueues a WSP-originated indication for processing by
// RunOTAIn.
func (e *Engine) SubmitOTAEvent(ev ota.InboundEvent) {
	e.events <- ev
}

// RunOTAIn is the OTA-in task: the single goroutine that mutates
// the session/push registries. It serially drains both the PI-intake
// handoff channel and the OTA-originated event channel, preserving
// per-session ordering because one task processes everything.
func (e *Engine) RunOTAIn(ctx context.Context) error {
	var tick <-chan time.Time
	if e.ReevaluateTicker != nil {
		tick = e.ReevaluateTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-e.ingest:
			e.handlePushMessageRecovered(ctx, msg)
		case ev := <-e.events:
			e.handleInternalEventRecovered(ctx, ev)
		case <-tick:
			e.reevaluateHeldPushes(ctx)
		}
	}
}

// handlePushMessageRecovered wraps HandlePushMessage so that
// ApplyStatus's programming-error panic becomes a logged error at the
// engine boundary, recovered here rather than crashing the task.
func (e *Engine) handlePushMessageRecovered(ctx context.Context, msg intake.PushMessage) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("recovered from push-machine programming error")
		}
	}()
	e.HandlePushMessage(ctx, msg)
}

func (e *Engine) handleInternalEventRecovered(ctx context.Context, ev ota.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("recovered from push-machine programming error")
		}
	}()
	e.HandleInternalEvent(ctx, ev)
}

// timeConstraint is the outcome of checking a push's delivery-window
// timestamps against the current time.
type timeConstraint int

const (
	constraintNone timeConstraint = iota
	constraintTooEarly
	constraintExpired
)

// HandlePushMessage runs a submitted push through duplicate detection,
// content transformation, bearer selection, and delivery-window checks
// before dispatching it, returning false on every terminal failure path
// and true on acceptance.
func (e *Engine) HandlePushMessage(ctx context.Context, msg intake.PushMessage) bool {
	c := msg.Control

	session, hasSession := e.sessions[c.Address]
	cless := (c.DeliveryMethod == "unconfirmed" || c.DeliveryMethod == "" || c.DeliveryMethod == "not-specified") && !hasSession

	pm := machine.NewPushMachine(c.PiPushID, e.pushIDs.Next())
	pm.DeliverBeforeTimestamp = c.DeliverBeforeTimestamp
	pm.DeliverAfterTimestamp = c.DeliverAfterTimestamp
	pm.Priority = c.Priority
	pm.Network = c.Network
	pm.NetworkRequired = c.NetworkRequired
	pm.Bearer = c.Bearer
	pm.BearerRequired = c.BearerRequired
	pm.ProgressNotesRequested = c.ProgressNotesRequested
	pm.PPGNotifyRequestedTo = c.PPGNotifyRequestedTo
	pm.Username = msg.Username
	pm.Password = msg.Password
	pm.AddrTuple = tuple.New(c.Address, msg.RemotePort, msg.LocalAddr, msg.LocalPort)
	pm.DeliveryMethod = parseDeliveryMethod(c.DeliveryMethod)

	headers := http.Header{}
	for k, vs := range msg.Payload.Headers {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	if msg.Payload.ContentType != "" {
		headers.Set("Content-Type", msg.Payload.ContentType)
	}
	pm.PushHeaders = headers
	pm.PushData = msg.Payload.Body

	// Step 4: duplicate detection happens before the push is inserted
	// anywhere, so a duplicate never creates a second machine.
	if c.PiPushID != "" {
		if _, exists := e.piPushIndex[c.PiPushID]; exists {
			e.replyError(ctx, msg.ReplySink, pap.CodeDuplicatePushID, pap.Describe(pap.CodeDuplicatePushID), pm)
			return false
		}
	}

	// Step 2: transform.
	newMIME, newBody, _, err := e.transcoder.Transform(pm.PushHeaders, pm.PushData)
	if err != nil {
		code := pap.CodeTransformationFailure
		if pm.AddrTuple.RemoteAddr == "" {
			code = pap.CodeAddressError
		}
		pm.ApplyStatus(machine.StatusUndeliverable2, code, e.clk)
		e.indexPush(pm)
		e.destroyPush(session, pm)
		e.replyTerminal(ctx, msg.ReplySink, pm)
		return false
	}
	if newMIME != "" {
		pm.PushHeaders.Set("Content-Type", newMIME)
		pm.PushData = newBody
	}

	// Step 3: allocate machines.
	if !cless {
		if !hasSession {
			session = machine.NewSessionMachine(c.Address, pm.AddrTuple)
			e.sessions[c.Address] = session
		}
		session.AddPush(pm)
	} else {
		e.unitPushes[pm.PushID] = pm
	}
	e.indexPush(pm)

	// Step 6: bearer selection.
	if !recognisedNetwork(pm.Network) || !recognisedBearer(pm.Bearer) {
		pm.ApplyStatus(machine.StatusUndeliverable2, pap.CodeRequiredBearerNotAvailable, e.clk)
		e.destroyPush(session, pm)
		e.replyTerminal(ctx, msg.ReplySink, pm)
		return false
	}
	if pm.BearerRequired && pm.NetworkRequired && pm.Bearer != "SMS" {
		pm.Network = ""
		pm.Bearer = ""
		pm.NetworkRequired = false
		pm.BearerRequired = false
	}

	// Step 7: time constraints.
	constraint := e.checkTimeConstraint(pm)
	if constraint == constraintExpired {
		pm.ApplyStatus(machine.StatusExpired, pap.CodeForbidden, e.clk)
		// The EXPIRED transition sets desc but not code; the response
		// still needs a numeric code, so it is set explicitly here
		// rather than inside ApplyStatus.
		pm.Code = pap.CodeForbidden
		e.destroyPush(session, pm)
		e.replyTerminal(ctx, msg.ReplySink, pm)
		return false
	}

	// Step 8: accept.
	e.replyAccepted(ctx, msg.ReplySink, pm)

	// Step 9: dispatch.
	switch {
	case constraint == constraintTooEarly:
		// keep the push machine, do nothing further; register a notify
		// sink so a later re-evaluation can still reach PI.
		e.registerNotifySink(pm)
	case pm.DeliveryMethod == machine.DeliveryUnconfirmed || pm.DeliveryMethod == machine.DeliveryNotSpecified:
		e.deliverUnitPush(session, pm)
		pm.ApplyStatus(machine.StatusDelivered1, 0, e.clk)
		e.destroyPush(session, pm)
	default:
		e.registerNotifySink(pm)
		e.deliverConfirmedPush(session, pm, hasSession)
	}

	return true
}

// registerNotifySink remembers how to reach the PI for a push that
// outlives the synchronous request (the original connection is gone by
// the time an OTA indication arrives), so a later asynchronous
// transition can still deliver a PAP notification document via
// ppg_notify_requested_to. A push that named no callback URL gets no
// entry; its eventual terminal transition is simply not reported
// anywhere beyond the PAP attribute itself.
func (e *Engine) registerNotifySink(pm *machine.PushMachine) {
	if e.identifiers == nil || pm.PiPushID == "" || pm.PPGNotifyRequestedTo == "" {
		return
	}
	e.identifiers.SetClient(pm.PiPushID, &intake.NotifyURLSink{URL: pm.PPGNotifyRequestedTo})
}

func (e *Engine) checkTimeConstraint(pm *machine.PushMachine) timeConstraint {
	now := pap.FormatTimestamp(e.clk.Now())
	if pm.DeliverBeforeTimestamp != "" && pm.DeliverBeforeTimestamp < now {
		return constraintExpired
	}
	if pm.DeliverAfterTimestamp != "" && pm.DeliverAfterTimestamp > now {
		return constraintTooEarly
	}
	return constraintNone
}

func (e *Engine) deliverUnitPush(session *machine.SessionMachine, pm *machine.PushMachine) {
	ev := ota.Event{
		Kind:          ota.KindUnitPush,
		PushID:        pm.PushID,
		Headers:       pm.PushHeaders,
		Body:          pm.PushData,
		Authenticated: pm.Authenticated,
		Trusted:       pm.Trusted,
		Network:       pm.Network,
		Bearer:        pm.Bearer,
		Username:      pm.Username,
		Password:      pm.Password,
	}
	if session != nil {
		ev.Kind = ota.KindPush
		ev.SessionID = session.SessionID
	}
	e.dispatcher.Submit(ev)
}

func (e *Engine) deliverConfirmedPush(session *machine.SessionMachine, pm *machine.PushMachine, hasSession bool) {
	if hasSession && session != nil {
		e.dispatcher.Submit(ota.Event{
			Kind:          ota.KindConfirmedPush,
			SessionID:     session.SessionID,
			PushID:        pm.PushID,
			Headers:       pm.PushHeaders,
			Body:          pm.PushData,
			Authenticated: pm.Authenticated,
			Trusted:       pm.Trusted,
			Network:       pm.Network,
			Bearer:        pm.Bearer,
			Username:      pm.Username,
			Password:      pm.Password,
		})
		return
	}
	e.dispatcher.Submit(ota.Event{
		Kind: ota.KindSessionRequest,
		ContactPoint: ota.ContactPoint{
			BearerIncluded: true,
			PortIncluded:   true,
			BearerType:     ota.GSMCSDIPv4,
			Port:           pm.AddrTuple.LocalPort,
			IPAddress:      ipOctets(pm.AddrTuple.LocalAddr),
		},
		Headers: pm.PushHeaders,
	})
	// the push remains until Po_ConfirmedPush_Cnf or Po_PushAbort_Ind.
}

// ipOctets returns the raw bytes of addr's IPv4 form, as the SIA PDU's
// bearer address requires. Falls back to the verbatim string bytes for
// a malformed address rather than dropping the session request
// entirely; the client will simply fail to reconnect.
func ipOctets(addr string) []byte {
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return []byte(addr)
}

func (e *Engine) indexPush(pm *machine.PushMachine) {
	if pm.PiPushID != "" {
		e.piPushIndex[pm.PiPushID] = pm
	}
}

// destroyPush removes pm from whichever registry owns it and from the
// pi_push_id index and identifier maps.
func (e *Engine) destroyPush(session *machine.SessionMachine, pm *machine.PushMachine) {
	if pm.PiPushID != "" {
		delete(e.piPushIndex, pm.PiPushID)
		if e.identifiers != nil {
			e.identifiers.Remove(pm.PiPushID)
		}
	}
	delete(e.unitPushes, pm.PushID)
	if session != nil {
		session.RemovePush(pm.PushID)
		if session.Collectible() {
			e.destroySession(session)
		}
	}
}

func (e *Engine) destroySession(session *machine.SessionMachine) {
	delete(e.sessions, session.PiClientAddr)
	if session.SessionID != 0 {
		delete(e.sessionsByID, session.SessionID)
	}
}

func (e *Engine) replyAccepted(ctx context.Context, sink intake.ReplySink, pm *machine.PushMachine) {
	doc := pap.PushResponse(pm.PiPushID, e.sender.String(), e.clk.Now())
	e.respond(ctx, sink, doc)
}

func (e *Engine) replyError(ctx context.Context, sink intake.ReplySink, code pap.Code, desc string, pm *machine.PushMachine) {
	doc := pap.ErrorResponse(code, desc, pm.PiPushID, e.sender.String(), pm.AddrTuple.RemoteAddr, e.clk.Now())
	e.respond(ctx, sink, doc)
}

func (e *Engine) replyTerminal(ctx context.Context, sink intake.ReplySink, pm *machine.PushMachine) {
	doc := pap.ErrorResponse(pm.Code, pm.Desc, pm.PiPushID, e.sender.String(), pm.AddrTuple.RemoteAddr, e.clk.Now())
	e.respond(ctx, sink, doc)
}

// notifySink looks up the asynchronous reply sink registered for pm, if
// any; used when a terminal transition happens outside the original
// HTTP request (OTA indications arrive long after the synchronous 202
// was already sent).
func (e *Engine) notifySink(pm *machine.PushMachine) intake.ReplySink {
	if e.identifiers == nil || pm.PiPushID == "" {
		return nil
	}
	sink, _ := e.identifiers.Client(pm.PiPushID)
	return sink
}

func (e *Engine) respond(ctx context.Context, sink intake.ReplySink, doc []byte) {
	if err := e.responder.Respond(ctx, sink, doc); err != nil {
		e.log.Warn().Err(err).Msg("failed to deliver PAP response")
	}
}

// reevaluateHeldPushes re-walks TOO_EARLY pushes and re-runs the
// delivery-window deadline test. This is the deliberate behavior
// change gated by EnableDeliveryTick; only active when ReevaluateTicker
// is non-nil.
func (e *Engine) reevaluateHeldPushes(ctx context.Context) {
	for _, session := range e.sessions {
		for _, pm := range session.PushMachines {
			e.reevaluateOne(ctx, session, pm)
		}
	}
	for _, pm := range e.unitPushes {
		e.reevaluateOne(ctx, nil, pm)
	}
}

func (e *Engine) reevaluateOne(ctx context.Context, session *machine.SessionMachine, pm *machine.PushMachine) {
	if pm.MessageState != machine.StatePending {
		return
	}
	switch e.checkTimeConstraint(pm) {
	case constraintExpired:
		pm.ApplyStatus(machine.StatusExpired, pap.CodeForbidden, e.clk)
		pm.Code = pap.CodeForbidden
		e.replyTerminal(ctx, e.notifySink(pm), pm)
		e.destroyPush(session, pm)
	case constraintNone:
		if pm.DeliveryMethod == machine.DeliveryUnconfirmed || pm.DeliveryMethod == machine.DeliveryNotSpecified {
			e.deliverUnitPush(session, pm)
			pm.ApplyStatus(machine.StatusDelivered1, 0, e.clk)
			e.destroyPush(session, pm)
		} else {
			e.deliverConfirmedPush(session, pm, session != nil)
		}
	}
}

// EnableDeliveryTick opts into the TOO_EARLY re-evaluation behavior
// change; off by default to match original behavior.
func (e *Engine) EnableDeliveryTick(d time.Duration) {
	e.ReevaluateTicker = time.NewTicker(d)
}

func parseDeliveryMethod(s string) machine.DeliveryMethod {
	switch s {
	case "confirmed":
		return machine.DeliveryConfirmed
	case "unconfirmed":
		return machine.DeliveryUnconfirmed
	case "preferconfirmed":
		return machine.DeliveryPreferConfirmed
	default:
		return machine.DeliveryNotSpecified
	}
}
