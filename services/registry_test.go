package services

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomnet/acse"
	"github.com/caio-sobreiro/dicomnet/association"
	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/types"
)

// mockHandler implements interfaces.ServiceHandler.
type mockHandler struct {
	handleFunc func(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error)
}

func (m *mockHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	if m.handleFunc != nil {
		return m.handleFunc(ctx, msg, data)
	}
	return NewResponseBuilder(msg).CEchoResponse(types.StatusSuccess), nil, nil
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry(nil)
	if registry == nil {
		t.Fatal("Expected non-nil registry")
	}
	if len(registry.handlers) != 0 {
		t.Errorf("Expected empty handlers map, got %d handlers", len(registry.handlers))
	}
}

func TestRegistry_RegisterHandler(t *testing.T) {
	registry := NewRegistry(nil)
	handler := &mockHandler{}

	registry.RegisterHandler(types.CEchoRQ, handler)

	assert.True(t, registry.HasHandler(types.CEchoRQ))
	assert.False(t, registry.HasHandler(types.CFindRQ))
}

func TestRegistry_RegisterHandler_Replace(t *testing.T) {
	registry := NewRegistry(nil)
	handler1 := &mockHandler{handleFunc: func(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
		return &types.Message{Status: 1}, nil, nil
	}}
	handler2 := &mockHandler{handleFunc: func(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
		return &types.Message{Status: 2}, nil, nil
	}}

	registry.RegisterHandler(types.CEchoRQ, handler1)
	registry.RegisterHandler(types.CEchoRQ, handler2)

	handler, ok := registry.handlers[types.CEchoRQ]
	require.True(t, ok)
	resp, _, err := handler.HandleDIMSE(context.Background(), &types.Message{}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), resp.Status)
}

func TestRegistry_UnregisterHandler(t *testing.T) {
	registry := NewRegistry(nil)
	registry.RegisterHandler(types.CEchoRQ, &mockHandler{})
	require.True(t, registry.HasHandler(types.CEchoRQ))

	registry.UnregisterHandler(types.CEchoRQ)
	assert.False(t, registry.HasHandler(types.CEchoRQ))
}

func TestRegistry_RegisteredCommands(t *testing.T) {
	registry := NewRegistry(nil)
	handler := &mockHandler{}

	registry.RegisterHandler(types.CEchoRQ, handler)
	registry.RegisterHandler(types.CFindRQ, handler)
	registry.RegisterHandler(types.CStoreRQ, handler)

	commands := registry.RegisteredCommands()
	require.Len(t, commands, 3)

	found := make(map[uint16]bool)
	for _, cmd := range commands {
		found[cmd] = true
	}
	for _, expected := range []uint16{types.CEchoRQ, types.CFindRQ, types.CStoreRQ} {
		assert.True(t, found[expected], "expected command 0x%04x registered", expected)
	}
}

func TestCreateErrorResponse(t *testing.T) {
	req := &types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:           42,
		AffectedSOPClassUID: types.VerificationSOPClass,
	}

	resp := CreateErrorResponse(req, types.StatusFailure)

	assert.Equal(t, uint16(types.CEchoRSP), resp.CommandField)
	assert.Equal(t, uint16(42), resp.MessageIDBeingRespondedTo)
	assert.Equal(t, uint16(types.StatusFailure), resp.Status)
	assert.Equal(t, uint16(noDataSetPresent), resp.CommandDataSetType)
	assert.Equal(t, req.AffectedSOPClassUID, resp.AffectedSOPClassUID)
}

// establish brings up a client/server association pair over real TCP
// loopback, mirroring association_test.go's helper of the same name: Serve
// needs an actual association.Association, not a mock.
func establish(t *testing.T) (client, server *association.Association) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	serverCh := make(chan *association.Association, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		srv, err := association.Accept(context.Background(), conn, association.AcceptParams{
			ArtimTimeout: 2 * time.Second,
			ResponseParams: acse.ResponseParams{
				AETitle: "SCP",
				Supported: []acse.SupportedAbstractSyntax{
					{AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
				},
			},
		})
		if err != nil {
			return
		}
		serverCh <- srv
	}()

	c, err := association.Connect(context.Background(), l.Addr().String(), association.ConnectParams{
		CallingAETitle: "SCU",
		CalledAETitle:  "SCP",
		ArtimTimeout:   2 * time.Second,
		Contexts: []acse.ProposedContext{
			acse.NewProposedContext(1, types.VerificationSOPClass, types.ImplicitVRLittleEndian),
		},
	})
	require.NoError(t, err)

	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server association")
	}
	return c, server
}

func TestRegistry_Serve_DispatchesEcho(t *testing.T) {
	client, server := establish(t)
	defer client.Abort(0)
	defer server.Abort(0)

	registry := NewRegistry(nil)
	registry.RegisterHandler(types.CEchoRQ, NewEchoService(nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Serve(ctx, server)

	echoCtx, echoCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer echoCancel()
	assert.NoError(t, client.Echo(echoCtx))
}

func TestRegistry_Serve_NoHandlerRespondsWithError(t *testing.T) {
	client, server := establish(t)
	defer client.Abort(0)
	defer server.Abort(0)

	registry := NewRegistry(nil) // no handlers registered at all

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Serve(ctx, server)

	echoCtx, echoCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer echoCancel()
	err := client.Echo(echoCtx)
	require.Error(t, err)
	var dimseErr *dicomerrors.DIMSEError
	require.True(t, errors.As(err, &dimseErr))
	assert.Equal(t, uint16(unsupportedCommandStatus), dimseErr.Status)
}
