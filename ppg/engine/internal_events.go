package engine

import (
	"context"

	"github.com/kannel-go/ppg/ppg/machine"
	"github.com/kannel-go/ppg/ppg/ota"
	"github.com/kannel-go/ppg/ppg/pap"
)

// HandleInternalEvent dispatches the four WSP-originated indications
// that drive PAP-attribute transitions.
func (e *Engine) HandleInternalEvent(ctx context.Context, ev ota.InboundEvent) {
	switch ev.Kind {
	case ota.KindConnectInd:
		e.handleConnectInd(ctx, ev)
	case ota.KindDisconnectInd:
		e.handleDisconnectInd(ctx, ev)
	case ota.KindConfirmedPushCnf:
		e.handleConfirmedPushCnf(ctx, ev)
	case ota.KindPushAbortInd:
		e.handlePushAbortInd(ctx, ev)
	}
}

func (e *Engine) handleConnectInd(ctx context.Context, ev ota.InboundEvent) {
	session, ok := e.sessions[ev.RemoteAddr]
	if !ok {
		e.log.Warn().Str("remote_addr", ev.RemoteAddr).Msg("Connect.ind for unknown session")
		return
	}

	session.SessionID = ev.SessionID
	e.sessionsByID[ev.SessionID] = session

	if ev.RequestedCaps != nil {
		assumed := machine.Capabilities(ev.RequestedCaps)
		if !e.CapabilityChecker(assumed, session.ClientCaps) {
			for _, pm := range session.PushMachines {
				pm.ApplyStatus(machine.StatusAborted, pap.CodeCapabilitiesMismatch, e.clk)
				e.replyTerminal(ctx, e.notifySink(pm), pm)
			}
			e.destroySessionAllPushes(session)
			e.destroySession(session)
			return
		}
		session.AssumedCaps = assumed
	}

	// deliver all pending pushes: unconfirmed ones are removed upon
	// dispatch, confirmed ones remain until Po_ConfirmedPush_Cnf.
	for _, pm := range pendingSnapshot(session) {
		if pm.DeliveryMethod == machine.DeliveryUnconfirmed || pm.DeliveryMethod == machine.DeliveryNotSpecified {
			e.deliverUnitPush(session, pm)
			pm.ApplyStatus(machine.StatusDelivered1, 0, e.clk)
			e.destroyPush(session, pm)
		} else {
			e.deliverConfirmedPush(session, pm, true)
		}
	}
}

// pendingSnapshot copies the current push list so destroyPush can
// safely mutate session.PushMachines while we range over it.
func pendingSnapshot(session *machine.SessionMachine) []*machine.PushMachine {
	out := make([]*machine.PushMachine, 0, len(session.PushMachines))
	for _, pm := range session.PushMachines {
		out = append(out, pm)
	}
	return out
}

func (e *Engine) handleDisconnectInd(ctx context.Context, ev ota.InboundEvent) {
	session, ok := e.sessionsByID[ev.SessionID]
	if !ok {
		return
	}
	abortCode := pap.AbortToCode(int(ota.ReasonUSERPND))
	for _, pm := range pendingSnapshot(session) {
		pm.ApplyStatus(machine.StatusAborted, abortCode, e.clk)
		e.replyTerminal(ctx, e.notifySink(pm), pm)
	}
	e.destroySessionAllPushes(session)
	e.destroySession(session)
}

func (e *Engine) handleConfirmedPushCnf(ctx context.Context, ev ota.InboundEvent) {
	session, ok := e.sessionsByID[ev.SessionID]
	if !ok {
		return
	}
	pm, ok := session.PushMachines[ev.PushID]
	if !ok {
		return
	}
	pm.ApplyStatus(machine.StatusDelivered2, 0, e.clk)
	e.replyTerminal(ctx, nil, pm)
	e.destroyPush(session, pm)
}

// handlePushAbortInd includes the aggressive session-wide destruction
// behavior: a single aborted push destroys the entire session, taking
// every sibling push with it. This mirrors the upstream behavior
// faithfully; it is not a bug fix.
func (e *Engine) handlePushAbortInd(ctx context.Context, ev ota.InboundEvent) {
	session, ok := e.sessionsByID[ev.SessionID]
	if !ok {
		return
	}
	code := pap.AbortToCode(int(ev.Reason))
	for _, pm := range pendingSnapshot(session) {
		pm.ApplyStatus(machine.StatusAborted, code, e.clk)
		e.replyTerminal(ctx, e.notifySink(pm), pm)
	}
	e.destroySessionAllPushes(session)
	e.destroySession(session)
}

// destroySessionAllPushes clears the registries and identifier-map
// entries for every push owned by session, without touching the
// session itself (the caller destroys the session separately).
func (e *Engine) destroySessionAllPushes(session *machine.SessionMachine) {
	for piPushID := range piPushIDsOf(session) {
		delete(e.piPushIndex, piPushID)
		if e.identifiers != nil {
			e.identifiers.Remove(piPushID)
		}
	}
	session.PushMachines = make(map[int64]*machine.PushMachine)
}

func piPushIDsOf(session *machine.SessionMachine) map[string]struct{} {
	out := make(map[string]struct{}, len(session.PushMachines))
	for _, pm := range session.PushMachines {
		if pm.PiPushID != "" {
			out[pm.PiPushID] = struct{}{}
		}
	}
	return out
}
