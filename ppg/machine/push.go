// Package machine implements the PushMachine and SessionMachine
// records and their PAP-attribute transitions.
package machine

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kannel-go/ppg/ppg/clock"
	"github.com/kannel-go/ppg/ppg/pap"
	"github.com/kannel-go/ppg/ppg/tuple"
)

// DeliveryMethod is the PAP delivery-method attribute requested by the PI.
type DeliveryMethod int

// Delivery methods.
const (
	DeliveryNotSpecified DeliveryMethod = iota
	DeliveryConfirmed
	DeliveryUnconfirmed
	DeliveryPreferConfirmed
)

// MessageState is the externally-observable PAP attribute.
type MessageState int

// Message states.
const (
	StatePending MessageState = iota
	StateDelivered
	StateUndeliverable
	StateExpired
	StateAborted
)

func (s MessageState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateDelivered:
		return "DELIVERED"
	case StateUndeliverable:
		return "UNDELIVERABLE"
	case StateExpired:
		return "EXPIRED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Status is the input to ApplyStatus, selecting one row of the PAP
// attribute transition table.
type Status int

// Status values, exactly the rows of the transition table.
const (
	StatusPending Status = iota
	StatusUndeliverable1
	StatusUndeliverable2
	StatusDelivered1
	StatusDelivered2
	StatusAborted
	StatusExpired
)

// pushIDAllocator hands out monotonically increasing push_id values,
// shaped after a simple atomic counter: one field, one Next() method.
type pushIDAllocator struct {
	id atomic.Int64
}

// Next returns the next push_id, starting at 1.
func (a *pushIDAllocator) Next() int64 {
	return a.id.Add(1)
}

// PushMachine is the per-push record.
type PushMachine struct {
	// Identifiers.
	PiPushID  string
	PushID    int64
	SessionID int64 // 0 until a session is bound

	// Addressing.
	AddrTuple tuple.AddrTuple

	// Payload.
	PushHeaders http.Header
	PushData    []byte

	// Delivery policy.
	DeliveryMethod        DeliveryMethod
	Priority              string
	DeliverBeforeTimestamp string
	DeliverAfterTimestamp  string

	// Bearer constraints.
	NetworkRequired bool
	Network         string
	BearerRequired  bool
	Bearer          string

	// Trust.
	Authenticated bool
	Trusted       bool

	// Notifications.
	ProgressNotesRequested bool
	PPGNotifyRequestedTo   string

	// Credentials (SMS bearer only).
	Username string
	Password string

	// PAP attribute.
	MessageState MessageState
	Code         pap.Code
	Desc         string
	EventTime    time.Time
}

// NewPushMachine creates a push machine in state PENDING.
func NewPushMachine(piPushID string, pushID int64) *PushMachine {
	return &PushMachine{
		PiPushID:     piPushID,
		PushID:       pushID,
		PushHeaders:  http.Header{},
		MessageState: StatePending,
	}
}

// ApplyStatus implements the PAP attribute transition table exactly. An
// unrecognised status is a programming error, signalled by panic; the
// engine boundary recovers it into an error.
func (pm *PushMachine) ApplyStatus(status Status, reason pap.Code, clk clock.Clock) {
	switch status {
	case StatusPending:
		pm.MessageState = StatePending
	case StatusUndeliverable1:
		pm.MessageState = StateUndeliverable
		pm.Code = pap.CodeBadRequest
		pm.Desc = pap.Describe(pap.CodeBadRequest)
	case StatusUndeliverable2:
		pm.MessageState = StateUndeliverable
		pm.Code = reason
		pm.Desc = pap.Describe(reason)
	case StatusDelivered1:
		pm.MessageState = StateDelivered
		pm.DeliveryMethod = DeliveryUnconfirmed
		pm.EventTime = clk.Now()
	case StatusDelivered2:
		pm.MessageState = StateDelivered
		pm.DeliveryMethod = DeliveryConfirmed
		pm.EventTime = clk.Now()
	case StatusAborted:
		pm.MessageState = StateAborted
		pm.Code = reason
		pm.EventTime = clk.Now()
		pm.Desc = pap.Describe(reason)
	case StatusExpired:
		pm.MessageState = StateExpired
		pm.EventTime = clk.Now()
		pm.Desc = pap.Describe(reason)
	default:
		panic("machine: ApplyStatus: unrecognised status value")
	}
}
