package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureInfoFailed(t *testing.T) {
	assert.False(t, SignatureInfo{}.Failed(), "absent err means success")
	assert.False(t, SignatureInfo{Err: []byte("null")}.Failed(), "JSON null means success")
	assert.True(t, SignatureInfo{Err: []byte(`{"InstructionError":[0,"Custom"]}`)}.Failed())
}

func TestTransactionResultFailed(t *testing.T) {
	assert.True(t, (&TransactionResult{}).Failed(), "missing meta is treated as failed")
	assert.False(t, (&TransactionResult{Meta: &TransactionMeta{}}).Failed())
	assert.False(t, (&TransactionResult{Meta: &TransactionMeta{Err: []byte("null")}}).Failed())
	assert.True(t, (&TransactionResult{Meta: &TransactionMeta{Err: []byte(`{"InsufficientFundsForFee":null}`)}}).Failed())
}

func TestTransactionResultBalanceDelta(t *testing.T) {
	tx := &TransactionResult{
		Meta: &TransactionMeta{
			PreBalances:  []uint64{5_000_000_000, 1_000_000_000},
			PostBalances: []uint64{4_000_000_000, 2_000_000_000},
		},
		Transaction: Transaction{
			Message: TransactionMessage{AccountKeys: []string{"sender", "receiver"}},
		},
	}

	delta, found := tx.BalanceDelta("receiver")
	assert.True(t, found)
	assert.Equal(t, int64(1_000_000_000), delta)

	delta, found = tx.BalanceDelta("sender")
	assert.True(t, found)
	assert.Equal(t, int64(-1_000_000_000), delta)

	_, found = tx.BalanceDelta("stranger")
	assert.False(t, found)
}

func TestTransactionResultBalanceDeltaMissingMeta(t *testing.T) {
	tx := &TransactionResult{
		Transaction: Transaction{
			Message: TransactionMessage{AccountKeys: []string{"a"}},
		},
	}
	_, found := tx.BalanceDelta("a")
	assert.False(t, found)
}
