package dimse

import (
	"testing"

	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/pdu"
	"github.com/caio-sobreiro/dicomnet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragment_SmallMessage_OnePDVEach(t *testing.T) {
	command := EncodeCommand(&types.Message{CommandField: types.CEchoRQ, MessageID: 1, CommandDataSetType: 0x0000})
	dataset := []byte("short dataset")

	pdvs := Fragment(1, command, dataset, 16384)
	require.Len(t, pdvs, 2)

	assert.True(t, pdvs[0].Command)
	assert.True(t, pdvs[0].Last)
	assert.Equal(t, command, pdvs[0].Data)

	assert.False(t, pdvs[1].Command)
	assert.True(t, pdvs[1].Last)
	assert.Equal(t, dataset, pdvs[1].Data)
}

func TestFragment_NoDataset_SingleCommandPDV(t *testing.T) {
	command := EncodeCommand(&types.Message{CommandField: types.CEchoRQ, CommandDataSetType: noDataSetPresent})
	pdvs := Fragment(1, command, nil, 16384)
	require.Len(t, pdvs, 1)
	assert.True(t, pdvs[0].Command)
	assert.True(t, pdvs[0].Last)
}

func TestFragment_LargeDataset_MultiplePDVs(t *testing.T) {
	command := EncodeCommand(&types.Message{CommandField: types.CStoreRQ, CommandDataSetType: 0x0000})
	dataset := make([]byte, 1000)
	for i := range dataset {
		dataset[i] = byte(i)
	}

	pdvs := Fragment(1, command, dataset, 256)
	require.Greater(t, len(pdvs), 1)

	var reassembled []byte
	for i, p := range pdvs {
		if p.Command {
			continue
		}
		reassembled = append(reassembled, p.Data...)
		if i < len(pdvs)-1 {
			assert.False(t, p.Last)
		}
	}
	assert.True(t, pdvs[len(pdvs)-1].Last)
	assert.Equal(t, dataset, reassembled)
}

func TestReassembler_SingleFragmentRoundTrip(t *testing.T) {
	command := EncodeCommand(&types.Message{CommandField: types.CEchoRQ, MessageID: 5, CommandDataSetType: noDataSetPresent})
	pdvs := Fragment(1, command, nil, 16384)

	r := &Reassembler{}
	var done bool
	var err error
	for _, p := range pdvs {
		done, err = r.Feed(p)
		require.NoError(t, err)
	}
	assert.True(t, done)

	msg, err := r.Message()
	require.NoError(t, err)
	assert.Equal(t, uint16(types.CEchoRQ), msg.CommandField)
	assert.Equal(t, uint16(5), msg.MessageID)
	assert.Empty(t, r.Dataset())
}

func TestReassembler_CommandAndDataset_MultiFragment(t *testing.T) {
	command := EncodeCommand(&types.Message{CommandField: types.CStoreRQ, MessageID: 2, CommandDataSetType: 0x0000})
	dataset := make([]byte, 500)
	for i := range dataset {
		dataset[i] = byte(i % 251)
	}
	pdvs := Fragment(3, command, dataset, 128)

	r := &Reassembler{}
	var done bool
	for i, p := range pdvs {
		var err error
		done, err = r.Feed(p)
		require.NoError(t, err)
		if i < len(pdvs)-1 {
			assert.False(t, done)
		}
	}
	require.True(t, done)
	assert.Equal(t, dataset, r.Dataset())

	msg, err := r.Message()
	require.NoError(t, err)
	assert.Equal(t, uint16(types.CStoreRQ), msg.CommandField)
}

func TestReassembler_Feed_DataPDVBeforeCommandDone_ProtocolError(t *testing.T) {
	r := &Reassembler{}
	_, err := r.Feed(pdu.PresentationDataValue{Command: false, Last: true, Data: []byte("too early")})
	require.Error(t, err)

	var pe *dicomerrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, dicomerrors.ProtocolErrorInvalidPDUParameter, pe.Kind)
}

func TestFragment_ZeroLengthCommand_NeverProduced(t *testing.T) {
	// A command set always has at least the group length element, so
	// Fragment never needs to special-case an empty command.
	command := EncodeCommand(&types.Message{CommandField: types.CEchoRQ, CommandDataSetType: noDataSetPresent})
	require.NotEmpty(t, command)
	pdvs := Fragment(1, command, nil, 16384)
	require.Len(t, pdvs, 1)
	assert.NotEmpty(t, pdvs[0].Data)
}
