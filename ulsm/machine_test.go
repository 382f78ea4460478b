package ulsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_RequestorHappyPath(t *testing.T) {
	m := NewMachine(nil)
	ctx := context.Background()

	require.NoError(t, m.Fire(ctx, EvtAssociateRequest))
	assert.Equal(t, StateAwaitingTransportOpen, m.Current())

	require.NoError(t, m.Fire(ctx, EvtTransportConnectConfirm))
	assert.Equal(t, StateAwaitingAssociateResponse, m.Current())

	require.NoError(t, m.Fire(ctx, EvtAssociateAccept))
	assert.Equal(t, StateEstablished, m.Current())

	require.NoError(t, m.Fire(ctx, EvtDataRequest))
	assert.Equal(t, StateEstablished, m.Current())

	require.NoError(t, m.Fire(ctx, EvtReleaseRequest))
	assert.Equal(t, StateAwaitingReleaseRP, m.Current())

	require.NoError(t, m.Fire(ctx, EvtReleaseResponsePDU))
	assert.Equal(t, StateIdle, m.Current())
}

func TestMachine_AcceptorHappyPath(t *testing.T) {
	m := NewMachine(nil)
	ctx := context.Background()

	require.NoError(t, m.Fire(ctx, EvtTransportConnectIndication))
	assert.Equal(t, StateAwaitingAssociateRQ, m.Current())

	require.NoError(t, m.Fire(ctx, EvtAssociateRequestPDU))
	assert.Equal(t, StateAwaitingLocalAssociateResponse, m.Current())

	require.NoError(t, m.Fire(ctx, EvtLocalAssociateAccept))
	assert.Equal(t, StateEstablished, m.Current())

	require.NoError(t, m.Fire(ctx, EvtReleaseRequestPDU))
	assert.Equal(t, StateAwaitingLocalReleaseResponse, m.Current())

	require.NoError(t, m.Fire(ctx, EvtLocalReleaseResponse))
	assert.Equal(t, StateAwaitingTransportClose, m.Current())

	require.NoError(t, m.Fire(ctx, EvtTransportClosed))
	assert.Equal(t, StateIdle, m.Current())
}

func TestMachine_AssociateRejectReturnsToIdle(t *testing.T) {
	m := NewMachine(nil)
	ctx := context.Background()

	require.NoError(t, m.Fire(ctx, EvtAssociateRequest))
	require.NoError(t, m.Fire(ctx, EvtTransportConnectConfirm))
	require.NoError(t, m.Fire(ctx, EvtAssociateReject))
	assert.Equal(t, StateIdle, m.Current())
}

func TestMachine_ReleaseCollision_RequestorSide(t *testing.T) {
	m := NewMachine(nil)
	ctx := context.Background()

	require.NoError(t, m.Fire(ctx, EvtAssociateRequest))
	require.NoError(t, m.Fire(ctx, EvtTransportConnectConfirm))
	require.NoError(t, m.Fire(ctx, EvtAssociateAccept))
	require.NoError(t, m.Fire(ctx, EvtReleaseRequest))
	assert.Equal(t, StateAwaitingReleaseRP, m.Current())

	// The peer's own A-RELEASE-RQ arrives before our A-RELEASE-RP does.
	require.NoError(t, m.Fire(ctx, EvtCollisionReleaseRequestPDU))
	assert.Equal(t, StateCollisionRequestorAwaitingLocal, m.Current())

	require.NoError(t, m.Fire(ctx, EvtCollisionLocalReleaseResponse))
	assert.Equal(t, StateCollisionRequestorAwaitingRP, m.Current())

	require.NoError(t, m.Fire(ctx, EvtCollisionReleaseResponsePDU))
	assert.Equal(t, StateIdle, m.Current())
}

func TestMachine_ReleaseCollision_AcceptorSide(t *testing.T) {
	m := NewMachine(nil)
	ctx := context.Background()

	require.NoError(t, m.Fire(ctx, EvtTransportConnectIndication))
	require.NoError(t, m.Fire(ctx, EvtAssociateRequestPDU))
	require.NoError(t, m.Fire(ctx, EvtLocalAssociateAccept))
	require.NoError(t, m.Fire(ctx, EvtReleaseRequestPDU))
	assert.Equal(t, StateAwaitingLocalReleaseResponse, m.Current())

	// Our own local user fires a release request before we've answered
	// the peer's inbound one.
	require.NoError(t, m.Fire(ctx, EvtReleaseRequest))
	assert.Equal(t, StateCollisionAcceptorAwaitingLocal, m.Current())

	require.NoError(t, m.Fire(ctx, EvtLocalReleaseResponse))
	assert.Equal(t, StateCollisionAcceptorAwaitingRP, m.Current())

	require.NoError(t, m.Fire(ctx, EvtReleaseResponsePDU))
	assert.Equal(t, StateIdle, m.Current())
}

func TestMachine_AbortFromEstablished(t *testing.T) {
	m := NewMachine(nil)
	ctx := context.Background()

	require.NoError(t, m.Fire(ctx, EvtAssociateRequest))
	require.NoError(t, m.Fire(ctx, EvtTransportConnectConfirm))
	require.NoError(t, m.Fire(ctx, EvtAssociateAccept))

	require.NoError(t, m.Fire(ctx, EvtAbortRequest))
	assert.Equal(t, StateAwaitingTransportClose, m.Current())

	require.NoError(t, m.Fire(ctx, EvtTransportClosed))
	assert.Equal(t, StateIdle, m.Current())
}

func TestMachine_AbortPDUReceivedFromEstablished(t *testing.T) {
	m := NewMachine(nil)
	ctx := context.Background()

	require.NoError(t, m.Fire(ctx, EvtAssociateRequest))
	require.NoError(t, m.Fire(ctx, EvtTransportConnectConfirm))
	require.NoError(t, m.Fire(ctx, EvtAssociateAccept))

	require.NoError(t, m.Fire(ctx, EvtAbortPDU))
	assert.Equal(t, StateIdle, m.Current())
}

func TestMachine_ProtocolErrorCatchAll_FromEveryState(t *testing.T) {
	for _, state := range allStates {
		t.Run(state, func(t *testing.T) {
			m := forceState(t, state)
			require.True(t, m.Can(EvtProtocolError), "AA-8 must be legal from every state, including %s", state)

			require.NoError(t, m.Fire(context.Background(), EvtProtocolError))
			assert.Equal(t, StateAwaitingTransportClose, m.Current())
		})
	}
}

func TestMachine_UndefinedEventRejected(t *testing.T) {
	m := NewMachine(nil)
	err := m.Fire(context.Background(), EvtAssociateAccept)
	assert.Error(t, err, "Sta1 has no direct transition for AE-3")
}

// forceState drives a fresh Machine through whatever path reaches state,
// so catch-all coverage can be asserted from every state the table names.
func forceState(t *testing.T, state string) *Machine {
	t.Helper()
	m := NewMachine(nil)
	ctx := context.Background()

	path := map[string][]string{
		StateIdle:                            nil,
		StateAwaitingTransportOpen:           {EvtAssociateRequest},
		StateAwaitingAssociateResponse:       {EvtAssociateRequest, EvtTransportConnectConfirm},
		StateEstablished:                      {EvtAssociateRequest, EvtTransportConnectConfirm, EvtAssociateAccept},
		StateAwaitingReleaseRP:               {EvtAssociateRequest, EvtTransportConnectConfirm, EvtAssociateAccept, EvtReleaseRequest},
		StateCollisionRequestorAwaitingLocal: {EvtAssociateRequest, EvtTransportConnectConfirm, EvtAssociateAccept, EvtReleaseRequest, EvtCollisionReleaseRequestPDU},
		StateCollisionRequestorAwaitingRP:    {EvtAssociateRequest, EvtTransportConnectConfirm, EvtAssociateAccept, EvtReleaseRequest, EvtCollisionReleaseRequestPDU, EvtCollisionLocalReleaseResponse},
		StateAwaitingAssociateRQ:             {EvtTransportConnectIndication},
		StateAwaitingLocalAssociateResponse:  {EvtTransportConnectIndication, EvtAssociateRequestPDU},
		StateAwaitingLocalReleaseResponse:    {EvtTransportConnectIndication, EvtAssociateRequestPDU, EvtLocalAssociateAccept, EvtReleaseRequestPDU},
		StateCollisionAcceptorAwaitingLocal:  {EvtTransportConnectIndication, EvtAssociateRequestPDU, EvtLocalAssociateAccept, EvtReleaseRequestPDU, EvtReleaseRequest},
		StateCollisionAcceptorAwaitingRP:     {EvtTransportConnectIndication, EvtAssociateRequestPDU, EvtLocalAssociateAccept, EvtReleaseRequestPDU, EvtReleaseRequest, EvtLocalReleaseResponse},
		StateAwaitingTransportClose:          {EvtAssociateRequest, EvtTransportConnectConfirm, EvtAssociateAccept, EvtAbortRequest},
	}[state]

	for _, evt := range path {
		require.NoError(t, m.Fire(ctx, evt))
	}
	require.Equal(t, state, m.Current())
	return m
}
