// Package ota implements the OTA dispatch layer: translating PPG
// primitives into WSP service primitives, and packing the SIA PDU used
// to bootstrap a connection-oriented push session.
package ota

import "net/http"

// Kind discriminates an Event's variant. Modelled as a tagged union
// (Kind plus kind-specific fields) rather than a field-schema macro.
type Kind int

// Outbound event kinds (PPG → WSP, handled by Dispatcher).
const (
	KindSessionRequest Kind = iota
	KindPush
	KindConfirmedPush
	KindUnitPush
	KindPushAbort
)

// InboundKind discriminates an InboundEvent's variant (WSP → PPG,
// consumed by ppg/engine).
type InboundKind int

// Inbound event kinds.
const (
	KindConnectInd InboundKind = iota
	KindDisconnectInd
	KindConfirmedPushCnf
	KindPushAbortInd
)

// AbortReason is an OTA PushAbort reason byte. Only the five values
// below are valid for an outbound Po_PushAbort_Req.
type AbortReason int

// Valid outbound abort reasons.
const (
	ReasonUSERREQ AbortReason = 0xEA
	ReasonUSERRFS AbortReason = 0xEB
	ReasonUSERPND AbortReason = 0xEC
	ReasonUSERDCR AbortReason = 0xED
	ReasonUSERDCU AbortReason = 0xEE
)

var validAbortReasons = map[AbortReason]struct{}{
	ReasonUSERREQ: {},
	ReasonUSERRFS: {},
	ReasonUSERPND: {},
	ReasonUSERDCR: {},
	ReasonUSERDCU: {},
}

// ContactPoint is the information packed into an SIA PDU to tell the
// client where to reconnect.
type ContactPoint struct {
	BearerIncluded bool
	PortIncluded   bool
	BearerType     byte // GSM_CSD_IPV4
	Port           int
	IPAddress      []byte // raw octets
}

// Event is an outbound, tagged-union PPG-to-WSP event.
type Event struct {
	Kind Kind

	SessionID int64

	// Push/ConfirmedPush/UnitPush fields.
	PushID        int64
	Headers       http.Header
	Body          []byte
	Authenticated bool
	Trusted       bool
	Last          bool
	Network       string
	Bearer        string
	Username      string
	Password      string

	// SessionRequest fields.
	AppIDs       []string
	ContactPoint ContactPoint

	// PushAbort fields.
	Reason AbortReason
}

// InboundEvent is a WSP-to-PPG indication, consumed by ppg/engine's
// HandleInternalEvent.
type InboundEvent struct {
	Kind InboundKind

	SessionID     int64
	RemoteAddr    string // ConnectInd: matches the pre-existing session by pi_client_address
	PushID        int64  // ConfirmedPushCnf / PushAbortInd
	ServerPushID  int64
	Reason        AbortReason // PushAbortInd
	RequestedCaps map[string]string
}

// ValidAbortReason reports whether r is one of the five reasons
// permitted for an outbound PushAbort request.
func ValidAbortReason(r AbortReason) bool {
	_, ok := validAbortReasons[r]
	return ok
}
