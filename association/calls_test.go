package association

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomnet/types"
)

// TestNServiceCalls_RoundTrip exercises every N-service SCU call against a
// server that just echoes back a success response for whatever command
// field it received, mirroring TestEcho_RoundTrip's shape.
func TestNServiceCalls_RoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		commandType uint16
		call        func(ctx context.Context, assoc *Association) (*types.Message, []byte, error)
	}{
		{
			name:        "NEventReport",
			commandType: types.NEventReportRQ,
			call: func(ctx context.Context, assoc *Association) (*types.Message, []byte, error) {
				return assoc.NEventReport(ctx, types.VerificationSOPClass, "1.2.3", 1, nil)
			},
		},
		{
			name:        "NGet",
			commandType: types.NGetRQ,
			call: func(ctx context.Context, assoc *Association) (*types.Message, []byte, error) {
				return assoc.NGet(ctx, types.VerificationSOPClass, "1.2.3", nil)
			},
		},
		{
			name:        "NSet",
			commandType: types.NSetRQ,
			call: func(ctx context.Context, assoc *Association) (*types.Message, []byte, error) {
				return assoc.NSet(ctx, types.VerificationSOPClass, "1.2.3", []byte{0x01})
			},
		},
		{
			name:        "NAction",
			commandType: types.NActionRQ,
			call: func(ctx context.Context, assoc *Association) (*types.Message, []byte, error) {
				return assoc.NAction(ctx, types.VerificationSOPClass, "1.2.3", 1, nil)
			},
		},
		{
			name:        "NCreate",
			commandType: types.NCreateRQ,
			call: func(ctx context.Context, assoc *Association) (*types.Message, []byte, error) {
				return assoc.NCreate(ctx, types.VerificationSOPClass, "", nil)
			},
		},
		{
			name:        "NDelete",
			commandType: types.NDeleteRQ,
			call: func(ctx context.Context, assoc *Association) (*types.Message, []byte, error) {
				return assoc.NDelete(ctx, types.VerificationSOPClass, "1.2.3")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := establish(t)
			defer client.Abort(0)
			defer server.Abort(0)

			go func() {
				in := <-server.Inbound()
				require.Equal(t, uint16(tt.commandType), in.Command.CommandField)
				resp := NewResponse(in.Command, types.StatusSuccess)
				_ = server.Respond(context.Background(), in.PresentationContextID, resp, nil)
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			resp, _, err := tt.call(ctx, client)
			require.NoError(t, err)
			require.Equal(t, uint16(types.StatusSuccess), resp.Status)
		})
	}
}
