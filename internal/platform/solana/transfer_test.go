package solana

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	pub    []byte
	sig    []byte
	signed []byte
}

func (f *fakeSigner) PublicKey() string {
	return base58.Encode(f.pub)
}

func (f *fakeSigner) Sign(message []byte) ([]byte, error) {
	f.signed = message
	return f.sig, nil
}

func key(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 32)
}

func TestAppendCompactU16(t *testing.T) {
	tests := []struct {
		v    uint16
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, appendCompactU16(nil, tt.v), "value %d", tt.v)
	}
}

func TestBuildTransferTx(t *testing.T) {
	signer := &fakeSigner{pub: key(1), sig: bytes.Repeat([]byte{0xAA}, 64)}
	recipient := base58.Encode(key(2))
	blockhash := base58.Encode(key(3))
	const lamports = uint64(1_500_000_000)

	encoded, err := BuildTransferTx(signer, recipient, lamports, blockhash)
	require.NoError(t, err)

	tx, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	// One signature, then the signed message.
	require.Greater(t, len(tx), 1+64)
	assert.Equal(t, byte(1), tx[0])
	assert.Equal(t, signer.sig, tx[1:65])

	msg := tx[65:]
	assert.Equal(t, signer.signed, msg, "signature must cover the serialized message")

	// Header: one signer, no read-only signed, one read-only unsigned.
	require.Greater(t, len(msg), 4+3*32+32)
	assert.Equal(t, []byte{1, 0, 1}, msg[0:3])

	// Account keys: sender, recipient, system program.
	assert.Equal(t, byte(3), msg[3])
	assert.Equal(t, key(1), msg[4:36])
	assert.Equal(t, key(2), msg[36:68])
	systemProgram, err := base58.Decode(SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, systemProgram, msg[68:100])

	// Recent blockhash.
	assert.Equal(t, key(3), msg[100:132])

	// One instruction: program index 2, accounts [sender, recipient].
	instr := msg[132:]
	require.Len(t, instr, 1+1+1+2+1+12)
	assert.Equal(t, byte(1), instr[0])
	assert.Equal(t, byte(2), instr[1])
	assert.Equal(t, byte(2), instr[2])
	assert.Equal(t, []byte{0, 1}, instr[3:5])

	// Instruction data: transfer discriminant and the lamport amount.
	assert.Equal(t, byte(12), instr[5])
	data := instr[6:]
	assert.Equal(t, transferInstructionIndex, binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, lamports, binary.LittleEndian.Uint64(data[4:12]))
}

func TestBuildTransferTxRejectsBadSignature(t *testing.T) {
	signer := &fakeSigner{pub: key(1), sig: []byte{0xAA}}
	_, err := BuildTransferTx(signer, base58.Encode(key(2)), 1, base58.Encode(key(3)))
	assert.Error(t, err)
}

func TestBuildTransferTxRejectsBadRecipient(t *testing.T) {
	signer := &fakeSigner{pub: key(1), sig: bytes.Repeat([]byte{0xAA}, 64)}
	_, err := BuildTransferTx(signer, "notakey", 1, base58.Encode(key(3)))
	assert.Error(t, err)
}
