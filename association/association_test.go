package association

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomnet/acse"
	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/pdu"
	"github.com/caio-sobreiro/dicomnet/types"
	"github.com/caio-sobreiro/dicomnet/ulsm"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func acceptParams() AcceptParams {
	return AcceptParams{
		ResponseParams: acse.ResponseParams{
			AETitle: "SCP",
			Supported: []acse.SupportedAbstractSyntax{
				{AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
			},
		},
		ArtimTimeout: 2 * time.Second,
	}
}

func connectParams() ConnectParams {
	return ConnectParams{
		CallingAETitle: "SCU",
		CalledAETitle:  "SCP",
		ArtimTimeout:   2 * time.Second,
		Contexts: []acse.ProposedContext{
			acse.NewProposedContext(1, types.VerificationSOPClass, types.ImplicitVRLittleEndian),
		},
	}
}

func TestConnectAccept_EstablishesWithNegotiatedContext(t *testing.T) {
	l := listen(t)

	serverCh := make(chan *Association, 1)
	serverErr := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		srv, err := Accept(context.Background(), conn, acceptParams())
		if err != nil {
			serverErr <- err
			return
		}
		serverCh <- srv
	}()

	client, err := Connect(context.Background(), l.Addr().String(), connectParams())
	require.NoError(t, err)
	defer client.Abort(0)

	var server *Association
	select {
	case server = <-serverCh:
	case err := <-serverErr:
		t.Fatalf("server accept failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server association")
	}
	defer server.Abort(0)

	require.Len(t, client.Contexts(), 1)
	assert.True(t, client.Contexts()[0].Accepted())
	assert.Equal(t, types.ImplicitVRLittleEndian, client.Contexts()[0].TransferSyntax())
	assert.Equal(t, ulsm.StateEstablished, client.State())
	assert.Equal(t, ulsm.StateEstablished, server.State())
}

func TestConnect_RejectedWhenAbstractSyntaxUnsupported(t *testing.T) {
	l := listen(t)

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		// No supported abstract syntaxes at all: every proposed context is
		// rejected, so Accept itself returns a NegotiationFailure.
		params := acceptParams()
		params.ResponseParams.Supported = nil
		Accept(context.Background(), conn, params)
	}()

	_, err := Connect(context.Background(), l.Addr().String(), connectParams())
	require.Error(t, err)
	var nf *dicomerrors.NegotiationFailure
	require.ErrorAs(t, err, &nf)
}

func TestEcho_RoundTrip(t *testing.T) {
	client, server := establish(t)
	defer client.Abort(0)
	defer server.Abort(0)

	go func() {
		in := <-server.Inbound()
		require.Equal(t, uint16(types.CEchoRQ), in.Command.CommandField)
		resp := NewResponse(in.Command, types.StatusSuccess)
		_ = server.Respond(context.Background(), in.PresentationContextID, resp, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Echo(ctx))
}

func TestRelease_BothSidesObserveReleased(t *testing.T) {
	client, server := establish(t)

	go func() {
		for range server.Events() {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Release(ctx))

	select {
	case evt := <-client.Events():
		_, ok := evt.(Released)
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Released event")
	}
}

// TestHandlePDataTF_DataPDVBeforeCommand_RoutesToAA8 exercises spec §4.5's
// receive-side invariant that a data PDV must not arrive before the command
// PDV's last fragment: the violation must surface as an Aborted event with a
// ProtocolError, not a silently dropped PDU.
func TestHandlePDataTF_DataPDVBeforeCommand_RoutesToAA8(t *testing.T) {
	client, server := establish(t)
	defer client.Abort(0)

	pc := client.Contexts()[0]
	frame := (&pdu.PDataTF{PDVs: []pdu.PresentationDataValue{
		{PresentationContextID: pc.ID(), Command: false, Last: true, Data: []byte("stray data")},
	}}).Encode()
	require.NoError(t, client.channel.WritePDU(context.Background(), frame))

	select {
	case evt := <-server.Events():
		aborted, ok := evt.(Aborted)
		require.True(t, ok, "expected Aborted event, got %T", evt)
		var pe *dicomerrors.ProtocolError
		require.ErrorAs(t, aborted.Err, &pe)
		assert.Equal(t, dicomerrors.ProtocolErrorInvalidPDUParameter, pe.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Aborted event")
	}
}

// TestHandlePDataTF_UnacceptedContext_RoutesToAA8 exercises spec §4.5's other
// receive-side invariant: a PDV's presentation context ID must match one the
// association actually accepted.
func TestHandlePDataTF_UnacceptedContext_RoutesToAA8(t *testing.T) {
	client, server := establish(t)
	defer client.Abort(0)

	var unacceptedID byte = 255
	for _, pc := range client.Contexts() {
		if pc.ID() == unacceptedID {
			unacceptedID--
		}
	}

	frame := (&pdu.PDataTF{PDVs: []pdu.PresentationDataValue{
		{PresentationContextID: unacceptedID, Command: true, Last: true, Data: []byte{0x00}},
	}}).Encode()
	require.NoError(t, client.channel.WritePDU(context.Background(), frame))

	select {
	case evt := <-server.Events():
		aborted, ok := evt.(Aborted)
		require.True(t, ok, "expected Aborted event, got %T", evt)
		var pe *dicomerrors.ProtocolError
		require.ErrorAs(t, aborted.Err, &pe)
		assert.Equal(t, dicomerrors.ProtocolErrorInvalidPDUParameter, pe.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Aborted event")
	}
}

func establish(t *testing.T) (client, server *Association) {
	t.Helper()
	l := listen(t)

	serverCh := make(chan *Association, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		srv, err := Accept(context.Background(), conn, acceptParams())
		if err != nil {
			return
		}
		serverCh <- srv
	}()

	c, err := Connect(context.Background(), l.Addr().String(), connectParams())
	require.NoError(t, err)

	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server association")
	}
	// Connect and Accept each emit Established before returning; consume it
	// so that tests observe the events that follow it.
	for _, a := range []*Association{c, server} {
		select {
		case evt := <-a.Events():
			require.IsType(t, Established{}, evt)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for Established event")
		}
	}
	return c, server
}
