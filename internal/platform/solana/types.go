package solana

import "encoding/json"

// SystemProgramID is the address of the native system program that owns
// plain SOL transfers.
const SystemProgramID = "11111111111111111111111111111111"

// SignatureInfo is one entry returned by getSignaturesForAddress.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Err       json.RawMessage `json:"err"`
	BlockTime *int64          `json:"blockTime"`
}

// Failed reports whether the transaction errored on chain.
func (s SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// TransactionMeta carries the pre/post execution state of a confirmed
// transaction.
type TransactionMeta struct {
	Err          json.RawMessage `json:"err"`
	Fee          uint64          `json:"fee"`
	PreBalances  []uint64        `json:"preBalances"`
	PostBalances []uint64        `json:"postBalances"`
}

// TransactionMessage is the decoded message of a confirmed transaction using
// the "json" encoding, where account keys are plain base58 strings.
type TransactionMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

// Transaction wraps the decoded transaction envelope.
type Transaction struct {
	Message    TransactionMessage `json:"message"`
	Signatures []string           `json:"signatures"`
}

// TransactionResult is the response payload of getTransaction.
type TransactionResult struct {
	Slot        uint64          `json:"slot"`
	BlockTime   *int64          `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction Transaction     `json:"transaction"`
}

// Failed reports whether the transaction errored on chain.
func (t *TransactionResult) Failed() bool {
	return t.Meta == nil || (len(t.Meta.Err) > 0 && string(t.Meta.Err) != "null")
}

// BalanceDelta returns the lamport balance change for the given account in
// this transaction, and whether the account appears in it at all. A positive
// delta means the account received funds.
func (t *TransactionResult) BalanceDelta(account string) (int64, bool) {
	if t.Meta == nil {
		return 0, false
	}
	for i, key := range t.Transaction.Message.AccountKeys {
		if key != account {
			continue
		}
		if i >= len(t.Meta.PreBalances) || i >= len(t.Meta.PostBalances) {
			return 0, false
		}
		return int64(t.Meta.PostBalances[i]) - int64(t.Meta.PreBalances[i]), true
	}
	return 0, false
}
