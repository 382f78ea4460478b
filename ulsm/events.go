package ulsm

// Event names follow the AE-/DT-/AR-/AA- mnemonics of Part 8 Table 9-10.
// AE = association establishment, DT = data transfer, AR = release,
// AA = abort.
const (
	// EvtAssociateRequest is the local user issuing an A-ASSOCIATE request
	// primitive (AE-1): the active open.
	EvtAssociateRequest = "AE-1"
	// EvtTransportConnectConfirm is the transport layer confirming the
	// outbound connection completed (AE-2).
	EvtTransportConnectConfirm = "AE-2"
	// EvtAssociateAccept is an A-ASSOCIATE-AC PDU arriving (AE-3).
	EvtAssociateAccept = "AE-3"
	// EvtAssociateReject is an A-ASSOCIATE-RJ PDU arriving (AE-4).
	EvtAssociateReject = "AE-4"
	// EvtTransportConnectIndication is an inbound transport connection
	// being accepted (AE-5): the passive open.
	EvtTransportConnectIndication = "AE-5"
	// EvtAssociateRequestPDU is an A-ASSOCIATE-RQ PDU arriving (AE-6).
	EvtAssociateRequestPDU = "AE-6"
	// EvtLocalAssociateAccept is the local user accepting an inbound
	// association (AE-7).
	EvtLocalAssociateAccept = "AE-7"
	// EvtLocalAssociateReject is the local user rejecting an inbound
	// association (AE-8).
	EvtLocalAssociateReject = "AE-8"

	// EvtDataRequest is a P-DATA request primitive from the local user
	// (DT-1).
	EvtDataRequest = "DT-1"
	// EvtDataIndication is a P-DATA-TF PDU arriving (DT-2).
	EvtDataIndication = "DT-2"

	// EvtReleaseRequest is a local A-RELEASE request primitive (AR-1).
	EvtReleaseRequest = "AR-1"
	// EvtReleaseRequestPDU is an A-RELEASE-RQ PDU arriving (AR-2).
	EvtReleaseRequestPDU = "AR-2"
	// EvtLocalReleaseResponse is the local user's A-RELEASE response
	// primitive (AR-3).
	EvtLocalReleaseResponse = "AR-3"
	// EvtReleaseResponsePDU is an A-RELEASE-RP PDU arriving (AR-4).
	EvtReleaseResponsePDU = "AR-4"
	// EvtTransportClosed is the transport connection closing (AR-5/AA-4,
	// overloaded across both release and abort paths per state).
	EvtTransportClosed = "AR-5"
	// EvtCollisionReleaseRequestPDU is an A-RELEASE-RQ PDU arriving while
	// this side already sent its own (AR-6/AR-8 depending on role).
	EvtCollisionReleaseRequestPDU = "AR-6"
	// EvtCollisionLocalReleaseResponse is the local release response
	// primitive during a collision (AR-7/AR-9 depending on role).
	EvtCollisionLocalReleaseResponse = "AR-7"
	// EvtCollisionReleaseResponsePDU is an A-RELEASE-RP PDU arriving
	// during a collision (AR-10).
	EvtCollisionReleaseResponsePDU = "AR-10"

	// EvtAbortRequest is a local A-ABORT request primitive (AA-1).
	EvtAbortRequest = "AA-1"
	// EvtAbortPDU is an A-ABORT PDU arriving (AA-3).
	EvtAbortPDU = "AA-3"
	// EvtProtocolError is any PDU that is unrecognized, malformed, or
	// invalid for the current state (AA-8). It is a legal transition from
	// every state. Firing some other event that the table does not define
	// for the current state makes Machine.Fire return an error instead; it
	// is not rerouted here.
	EvtProtocolError = "AA-8"
)
