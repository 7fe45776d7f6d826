package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// TxSigner signs transaction messages with the treasury key.
type TxSigner interface {
	// PublicKey returns the base58-encoded signer public key.
	PublicKey() string
	// Sign returns the 64-byte ed25519 signature over message.
	Sign(message []byte) ([]byte, error)
}

// transferInstructionIndex is the system program's instruction discriminant
// for Transfer.
const transferInstructionIndex uint32 = 2

// signatureLen is the length of an ed25519 signature.
const signatureLen = 64

// Transfer builds, signs, and submits a system-program SOL transfer from the
// signer's account to the recipient. It returns the transaction signature.
func (c *Client) Transfer(ctx context.Context, signer TxSigner, recipient string, lamports uint64) (string, error) {
	blockhash, err := c.GetLatestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	tx, err := BuildTransferTx(signer, recipient, lamports, blockhash)
	if err != nil {
		return "", err
	}

	return c.SendTransaction(ctx, tx)
}

// BuildTransferTx serializes and signs a legacy transaction containing a
// single system-program transfer instruction, returning it base64-encoded
// for sendTransaction.
func BuildTransferTx(signer TxSigner, recipient string, lamports uint64, recentBlockhash string) (string, error) {
	msg, err := buildTransferMessage(signer.PublicKey(), recipient, lamports, recentBlockhash)
	if err != nil {
		return "", err
	}

	sig, err := signer.Sign(msg)
	if err != nil {
		return "", fmt.Errorf("solana: sign transfer: %w", err)
	}
	if len(sig) != signatureLen {
		return "", fmt.Errorf("solana: sign transfer: signature length %d", len(sig))
	}

	// Wire format: compact array of signatures followed by the message.
	tx := make([]byte, 0, 1+signatureLen+len(msg))
	tx = appendCompactU16(tx, 1)
	tx = append(tx, sig...)
	tx = append(tx, msg...)

	return base64.StdEncoding.EncodeToString(tx), nil
}

// buildTransferMessage serializes the legacy message: header, static account
// keys, recent blockhash, and the single transfer instruction.
func buildTransferMessage(from, to string, lamports uint64, recentBlockhash string) ([]byte, error) {
	fromKey, err := decodeKey("sender", from)
	if err != nil {
		return nil, err
	}
	toKey, err := decodeKey("recipient", to)
	if err != nil {
		return nil, err
	}
	programKey, err := decodeKey("system program", SystemProgramID)
	if err != nil {
		return nil, err
	}
	blockhash, err := decodeKey("blockhash", recentBlockhash)
	if err != nil {
		return nil, err
	}

	var msg []byte

	// Header: one required signature, no read-only signed accounts, one
	// read-only unsigned account (the system program).
	msg = append(msg, 1, 0, 1)

	// Account keys: sender (writable signer), recipient (writable), program.
	msg = appendCompactU16(msg, 3)
	msg = append(msg, fromKey...)
	msg = append(msg, toKey...)
	msg = append(msg, programKey...)

	msg = append(msg, blockhash...)

	// Instruction data: u32 LE discriminant followed by u64 LE lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], transferInstructionIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	// One instruction: program index 2, account indexes [0, 1].
	msg = appendCompactU16(msg, 1)
	msg = append(msg, 2)
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1)
	msg = appendCompactU16(msg, uint16(len(data)))
	msg = append(msg, data...)

	return msg, nil
}

// decodeKey base58-decodes a 32-byte key or blockhash.
func decodeKey(what, s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("solana: decode %s %q: %w", what, s, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("solana: decode %s %q: got %d bytes, want 32", what, s, len(b))
	}
	return b, nil
}

// appendCompactU16 appends v in the compact-u16 (shortvec) encoding used for
// array lengths in the transaction wire format.
func appendCompactU16(buf []byte, v uint16) []byte {
	for {
		if v < 0x80 {
			return append(buf, byte(v))
		}
		buf = append(buf, byte(v&0x7f)|0x80)
		v >>= 7
	}
}
