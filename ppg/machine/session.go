package machine

import "github.com/kannel-go/ppg/ppg/tuple"

// Capabilities is the negotiated/assumed WSP capability set carried by a
// session. Individual fields aren't enumerated beyond "assumed" vs
// "negotiated" comparison, so this is an opaque, comparable map the
// capability checker inspects.
type Capabilities map[string]string

// SessionMachine is the per-session record. It owns its push machines
// exclusively; only the OTA-in task mutates PushMachines, so no
// internal locking is required here.
type SessionMachine struct {
	SessionID     int64 // 0 (unbound) until WSP's Connect.ind assigns one
	AddrTuple     tuple.AddrTuple
	PiClientAddr  string
	AssumedCaps   Capabilities
	ClientCaps    Capabilities
	PreferConfirmedValue bool

	PushMachines map[int64]*PushMachine // keyed by push_id
}

// NewSessionMachine creates an unbound session for the given PI client
// address.
func NewSessionMachine(piClientAddr string, t tuple.AddrTuple) *SessionMachine {
	return &SessionMachine{
		PiClientAddr: piClientAddr,
		AddrTuple:    t,
		PushMachines: make(map[int64]*PushMachine),
	}
}

// Bound reports whether WSP has assigned this session a real session_id
// (invariant 2).
func (sm *SessionMachine) Bound() bool {
	return sm.SessionID > 0
}

// Collectible reports whether this session has no owned pushes left and
// may be garbage-collected (invariant 5). A session with an outstanding
// WSP binding but no pushes is still collectible; collection is tied
// to emptiness of PushMachines, not to the WSP binding.
func (sm *SessionMachine) Collectible() bool {
	return len(sm.PushMachines) == 0
}

// AddPush inserts pm into this session's owned list.
func (sm *SessionMachine) AddPush(pm *PushMachine) {
	pm.SessionID = sm.SessionID
	sm.PushMachines[pm.PushID] = pm
}

// RemovePush removes the push machine with the given push_id, if owned.
func (sm *SessionMachine) RemovePush(pushID int64) {
	delete(sm.PushMachines, pushID)
}
