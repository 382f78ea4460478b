package pdu

import (
	"testing"

	"github.com/caio-sobreiro/dicomnet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseRQRP_RoundTrip(t *testing.T) {
	rqFrame := (&ReleaseRQ{}).Encode()
	decoded, err := Decode(rqFrame)
	require.Nil(t, err)
	assert.Equal(t, byte(types.TypeReleaseRQ), decoded.Type)
	_, ok := decoded.Body.(*ReleaseRQ)
	assert.True(t, ok)

	rpFrame := (&ReleaseRP{}).Encode()
	decoded, err = Decode(rpFrame)
	require.Nil(t, err)
	assert.Equal(t, byte(types.TypeReleaseRP), decoded.Type)
	_, ok = decoded.Body.(*ReleaseRP)
	assert.True(t, ok)
}

func TestAbort_RoundTrip(t *testing.T) {
	a := &Abort{Source: AbortSourceServiceProvider, Reason: AbortReasonUnexpectedPDU}
	frame := a.Encode()

	decoded, err := Decode(frame)
	require.Nil(t, err)
	assert.Equal(t, byte(types.TypeAbort), decoded.Type)

	got, ok := decoded.Body.(*Abort)
	require.True(t, ok)
	assert.Equal(t, a.Source, got.Source)
	assert.Equal(t, a.Reason, got.Reason)
}
