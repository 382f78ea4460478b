package aentity

import (
	"context"
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

func newSCP(opts ...Option) *Entity {
	base := []Option{
		WithSupportedAbstractSyntax(acse.SupportedAbstractSyntax{
			AbstractSyntax:   types.VerificationSOPClass,
			TransferSyntaxes: []string{types.ImplicitVRLittleEndian},
		}),
		WithARTIMTimeout(2 * time.Second),
	}
	return New("SCP", append(base, opts...)...)
}

func TestServe_EchoRoundTrip(t *testing.T) {
	scp := newSCP()
	scu := New("SCU", WithARTIMTimeout(2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- scp.Serve(ctx, listener, func(ctx context.Context, assoc *association.Association) {
			defer assoc.Abort(0)
			in := <-assoc.Inbound()
			if in == nil {
				return
			}
			resp := association.NewResponse(in.Command, types.StatusSuccess)
			_ = assoc.Respond(ctx, in.PresentationContextID, resp, nil)
		})
	}()

	assoc, err := scu.Associate(context.Background(), address, "SCP", []acse.ProposedContext{
		acse.NewProposedContext(1, types.VerificationSOPClass, types.ImplicitVRLittleEndian),
	})
	require.NoError(t, err)
	defer assoc.Abort(0)

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	assert.NoError(t, assoc.Echo(callCtx))

	cancel()
	select {
	case <-serveErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not shut down after context cancellation")
	}
}

func TestServe_RejectsUnknownCallingAETitle(t *testing.T) {
	scp := newSCP(WithRequireCallingAETitle("TRUSTED_SCU"))
	scu := New("UNTRUSTED_SCU", WithARTIMTimeout(2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- scp.Serve(ctx, listener, func(ctx context.Context, assoc *association.Association) {
			assoc.Abort(0)
		})
	}()

	_, err = scu.Associate(context.Background(), address, "SCP", []acse.ProposedContext{
		acse.NewProposedContext(1, types.VerificationSOPClass, types.ImplicitVRLittleEndian),
	})
	require.Error(t, err)
	var nf *dicomerrors.NegotiationFailure
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, dicomerrors.RejectReasonCallingAETitleNotRecognized, nf.Reason)

	cancel()
	<-serveErr
}
