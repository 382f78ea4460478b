package ulsm

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// Machine wraps the looplab/fsm engine with the DICOM Upper Layer's fixed
// 13-state, 41-transition table, Part 8 Table 9-10. It is transport- and
// PDU-agnostic: callers fire named events in response to PDUs, timers, and
// local user primitives, and observe state changes through fsm.Callbacks
// supplied at construction (the "enter_<state>" / "leave_<state>" hooks
// are where sending a PDU, arming ARTIM, or closing the transport belong).
type Machine struct {
	fsm *fsm.FSM
}

// NewMachine builds a state machine starting in Sta1 (Idle). callbacks may
// be nil; the caller is expected to register at least "enter_<state>"
// hooks for every state that has a side effect (sending a PDU, arming or
// disarming ARTIM, closing the transport).
func NewMachine(callbacks fsm.Callbacks) *Machine {
	return &Machine{
		fsm: fsm.NewFSM(StateIdle, transitionTable(), callbacks),
	}
}

// transitionTable returns the full Part 8 Table 9-10 event table, plus the
// AA-8 catch-all: EvtProtocolError is a legal transition from every state.
// An event with no transition from the current state is not rerouted to
// AA-8 by the machine: Fire returns an error and the state is unchanged.
func transitionTable() fsm.Events {
	return fsm.Events{
		// Association establishment, caller (active open) side.
		{Name: EvtAssociateRequest, Src: []string{StateIdle}, Dst: StateAwaitingTransportOpen},
		{Name: EvtTransportConnectConfirm, Src: []string{StateAwaitingTransportOpen}, Dst: StateAwaitingAssociateResponse},
		{Name: EvtAssociateAccept, Src: []string{StateAwaitingAssociateResponse}, Dst: StateEstablished},
		{Name: EvtAssociateReject, Src: []string{StateAwaitingAssociateResponse}, Dst: StateIdle},

		// Association establishment, callee (passive open) side.
		{Name: EvtTransportConnectIndication, Src: []string{StateIdle}, Dst: StateAwaitingAssociateRQ},
		{Name: EvtAssociateRequestPDU, Src: []string{StateAwaitingAssociateRQ}, Dst: StateAwaitingLocalAssociateResponse},
		{Name: EvtLocalAssociateAccept, Src: []string{StateAwaitingLocalAssociateResponse}, Dst: StateEstablished},
		{Name: EvtLocalAssociateReject, Src: []string{StateAwaitingLocalAssociateResponse}, Dst: StateAwaitingTransportClose},

		// Data transfer: self-loops on the established state.
		{Name: EvtDataRequest, Src: []string{StateEstablished}, Dst: StateEstablished},
		{Name: EvtDataIndication, Src: []string{StateEstablished}, Dst: StateEstablished},

		// Release, requestor side.
		{Name: EvtReleaseRequest, Src: []string{StateEstablished}, Dst: StateAwaitingReleaseRP},
		{Name: EvtReleaseResponsePDU, Src: []string{StateAwaitingReleaseRP, StateCollisionAcceptorAwaitingRP}, Dst: StateIdle},

		// Release, acceptor side.
		{Name: EvtReleaseRequestPDU, Src: []string{StateEstablished}, Dst: StateAwaitingLocalReleaseResponse},
		{Name: EvtLocalReleaseResponse, Src: []string{StateAwaitingLocalReleaseResponse}, Dst: StateAwaitingTransportClose},

		// Release collision: the requestor side receives the peer's own
		// A-RELEASE-RQ while still awaiting its A-RELEASE-RP (Sta7->Sta9),
		// answers it (Sta9->Sta11), then still waits for its own RP
		// (Sta11->Sta1).
		{Name: EvtCollisionReleaseRequestPDU, Src: []string{StateAwaitingReleaseRP}, Dst: StateCollisionRequestorAwaitingLocal},
		{Name: EvtCollisionLocalReleaseResponse, Src: []string{StateCollisionRequestorAwaitingLocal}, Dst: StateCollisionRequestorAwaitingRP},
		{Name: EvtCollisionReleaseResponsePDU, Src: []string{StateCollisionRequestorAwaitingRP}, Dst: StateIdle},

		// Release collision: the acceptor side, still owing a response to
		// the peer's A-RELEASE-RQ, has its own local release request fire
		// too (Sta8->Sta12), answers the peer (Sta12->Sta10), then waits
		// for the peer's A-RELEASE-RP to its own request (Sta10->Sta1,
		// folded into the EvtReleaseResponsePDU entry above).
		{Name: EvtReleaseRequest, Src: []string{StateAwaitingLocalReleaseResponse}, Dst: StateCollisionAcceptorAwaitingLocal},
		{Name: EvtLocalReleaseResponse, Src: []string{StateCollisionAcceptorAwaitingLocal}, Dst: StateCollisionAcceptorAwaitingRP},

		// Abort: from every non-idle state, the local user or the peer can
		// always tear the association down.
		{Name: EvtAbortRequest, Src: nonIdleStates(), Dst: StateAwaitingTransportClose},
		{Name: EvtAbortPDU, Src: nonIdleStates(), Dst: StateIdle},
		{Name: EvtTransportClosed, Src: nonIdleStates(), Dst: StateIdle},

		// AA-8: the catch-all, legal from any state including Idle (an
		// unexpected PDU on a fresh connection is still a protocol
		// violation to be aborted). Events this table does not route for
		// the current state do not land here on their own; the caller
		// fires EvtProtocolError for them.
		{Name: EvtProtocolError, Src: allStates, Dst: StateAwaitingTransportClose},
	}
}

// nonIdleStates is every state except Sta1, used to build the abort and
// transport-closed transitions that apply once an association exists.
func nonIdleStates() []string {
	out := make([]string, 0, len(allStates)-1)
	for _, s := range allStates {
		if s != StateIdle {
			out = append(out, s)
		}
	}
	return out
}

// Fire drives the machine with a named event. args are forwarded verbatim
// to any registered fsm.Callback for this transition (the enter_<state>
// and before_<event> hooks receive them via fsm.Event.Args). A transition
// whose destination is the current state (DT-1/DT-2 in Sta6, AA-8 in
// Sta13) succeeds and leaves the state unchanged.
func (m *Machine) Fire(ctx context.Context, event string, args ...interface{}) error {
	if err := m.fsm.Event(ctx, event, args...); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) && noTransition.Err == nil {
			return nil
		}
		return fmt.Errorf("ulsm: %s in %s: %w", event, m.fsm.Current(), err)
	}
	return nil
}

// Current returns the machine's current state (one of the State* constants).
func (m *Machine) Current() string {
	return m.fsm.Current()
}

// Can reports whether event is a legal transition from the current state.
func (m *Machine) Can(event string) bool {
	return m.fsm.Can(event)
}
