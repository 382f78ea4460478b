package pdu

import (
	"testing"

	"github.com/caio-sobreiro/dicomnet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDataTF_RoundTrip(t *testing.T) {
	p := &PDataTF{
		PDVs: []PresentationDataValue{
			{PresentationContextID: 1, Command: true, Last: true, Data: []byte{0x00, 0x00, 0x00, 0x01}},
			{PresentationContextID: 1, Command: false, Last: false, Data: make([]byte, 1024)},
			{PresentationContextID: 1, Command: false, Last: true, Data: []byte{0xAA, 0xBB}},
		},
	}

	frame := p.Encode()
	decoded, err := Decode(frame)
	require.Nil(t, err)
	assert.Equal(t, byte(types.TypePDataTF), decoded.Type)

	got, ok := decoded.Body.(*PDataTF)
	require.True(t, ok)
	require.Len(t, got.PDVs, 3)

	assert.True(t, got.PDVs[0].Command)
	assert.True(t, got.PDVs[0].Last)
	assert.Equal(t, p.PDVs[0].Data, got.PDVs[0].Data)

	assert.False(t, got.PDVs[1].Command)
	assert.False(t, got.PDVs[1].Last)
	assert.Equal(t, p.PDVs[1].Data, got.PDVs[1].Data)

	assert.False(t, got.PDVs[2].Command)
	assert.True(t, got.PDVs[2].Last)
}

func TestPDataTF_EmptyFragment(t *testing.T) {
	p := &PDataTF{PDVs: []PresentationDataValue{{PresentationContextID: 1, Command: true, Last: true, Data: nil}}}
	frame := p.Encode()

	decoded, err := Decode(frame)
	require.Nil(t, err)
	got := decoded.Body.(*PDataTF)
	require.Len(t, got.PDVs, 1)
	assert.Empty(t, got.PDVs[0].Data)
}

func TestDecodePDataTF_TruncatedPDV(t *testing.T) {
	body := []byte{0x00, 0x00, 0x00, 0x10, 0x01, 0x03} // declares 16 bytes, only 2 follow
	_, err := DecodePDataTF(body)
	require.NotNil(t, err)
	assert.Equal(t, LengthMismatch, err.Kind)
}
