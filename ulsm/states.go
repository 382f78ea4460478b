// Package ulsm implements the DICOM Upper Layer state machine, Part 8
// §9.2 and Table 9-10: the 13 states and the events/actions that move an
// association between them. It is deliberately ignorant of PDU bytes and
// sockets — those live in transport and pdu — so that its transition table
// can be exercised by table-driven tests without a network.
package ulsm

// State names follow Part 8 Table 9-1's Sta1..Sta13 numbering, given
// descriptive Go names for readability in logs and callbacks.
const (
	StateIdle                          = "Sta1"  // Idle
	StateAwaitingAssociateRQ           = "Sta2"  // transport open, awaiting A-ASSOCIATE-RQ
	StateAwaitingLocalAssociateResponse = "Sta3"  // awaiting local user's accept/reject
	StateAwaitingTransportOpen         = "Sta4"  // awaiting transport connect to complete
	StateAwaitingAssociateResponse     = "Sta5"  // awaiting A-ASSOCIATE-AC/RJ PDU
	StateEstablished                    = "Sta6"  // association established, data transfer
	StateAwaitingReleaseRP              = "Sta7"  // requestor: awaiting A-RELEASE-RP
	StateAwaitingLocalReleaseResponse   = "Sta8"  // acceptor: awaiting local release response
	StateCollisionRequestorAwaitingLocal = "Sta9"  // release collision, requestor side, awaiting local response
	StateCollisionAcceptorAwaitingRP     = "Sta10" // release collision, acceptor side, awaiting A-RELEASE-RP
	StateCollisionRequestorAwaitingRP    = "Sta11" // release collision, requestor side, awaiting A-RELEASE-RP
	StateCollisionAcceptorAwaitingLocal  = "Sta12" // release collision, acceptor side, awaiting local response
	StateAwaitingTransportClose          = "Sta13" // awaiting transport connection close
)

// terminalStates are the states in which the ARTIM timer is disarmed
// because there is no outstanding PDU expected from the peer.
var terminalStates = map[string]bool{
	StateIdle:       true,
	StateEstablished: true,
}

// IsTerminal reports whether state requires no ARTIM supervision.
func IsTerminal(state string) bool {
	return terminalStates[state]
}

// allStates lists every state, used to build AA-8's catch-all transition.
var allStates = []string{
	StateIdle,
	StateAwaitingAssociateRQ,
	StateAwaitingLocalAssociateResponse,
	StateAwaitingTransportOpen,
	StateAwaitingAssociateResponse,
	StateEstablished,
	StateAwaitingReleaseRP,
	StateAwaitingLocalReleaseResponse,
	StateCollisionRequestorAwaitingLocal,
	StateCollisionAcceptorAwaitingRP,
	StateCollisionRequestorAwaitingRP,
	StateCollisionAcceptorAwaitingLocal,
	StateAwaitingTransportClose,
}
