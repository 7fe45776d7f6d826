package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degenflap/feeflow/internal/domain"
	"github.com/degenflap/feeflow/internal/platform/solana"
)

const testWallet = "CreatorWallet1111111111111111111"

type stubChain struct {
	sigs     []solana.SignatureInfo
	txs      map[string]*solana.TransactionResult
	txErrs   map[string]error
	sigCalls int
	txCalls  []string
}

func (c *stubChain) GetSignaturesForAddress(_ context.Context, _ string, _ int) ([]solana.SignatureInfo, error) {
	c.sigCalls++
	return c.sigs, nil
}

func (c *stubChain) GetTransaction(_ context.Context, signature string) (*solana.TransactionResult, error) {
	c.txCalls = append(c.txCalls, signature)
	if err := c.txErrs[signature]; err != nil {
		return nil, err
	}
	return c.txs[signature], nil
}

// stubDepositStore records deposits in memory and credits their USD value to
// the shared event-store balance, mirroring the transactional coupling of the
// real store.
type stubDepositStore struct {
	deposits map[string]domain.FeeDeposit
	order    []string
	agg      *stubEventStore
}

func newStubDepositStore(agg *stubEventStore) *stubDepositStore {
	return &stubDepositStore{deposits: make(map[string]domain.FeeDeposit), agg: agg}
}

func (s *stubDepositStore) Record(_ context.Context, deposit domain.FeeDeposit, _ int64) (bool, error) {
	if _, ok := s.deposits[deposit.TxSig]; ok {
		return false, nil
	}
	s.deposits[deposit.TxSig] = deposit
	s.order = append(s.order, deposit.TxSig)
	if s.agg != nil {
		s.agg.balance = s.agg.balance.Add(deposit.AmountUSD)
	}
	return true, nil
}

func (s *stubDepositStore) Exists(_ context.Context, txSig string) (bool, error) {
	_, ok := s.deposits[txSig]
	return ok, nil
}

func (s *stubDepositStore) ListRecent(context.Context, int) ([]domain.FeeDeposit, error) {
	return nil, nil
}

func (s *stubDepositStore) ListBefore(context.Context, time.Time) ([]domain.FeeDeposit, error) {
	return nil, nil
}

func (s *stubDepositStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubLocks struct {
	held     bool
	acquired []string
}

func (l *stubLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired = append(l.acquired, key)
	return func() {}, nil
}

type stubRates struct {
	rate  decimal.Decimal
	calls int
	err   error
}

func (r *stubRates) SolUSD(context.Context) (decimal.Decimal, error) {
	r.calls++
	if r.err != nil {
		return decimal.Zero, r.err
	}
	return r.rate, nil
}

// transferTx builds a confirmed transaction that changes the wallet's balance
// by delta lamports.
func transferTx(wallet string, delta int64) *solana.TransactionResult {
	pre := uint64(10 * domain.LamportsPerSol)
	return &solana.TransactionResult{
		Meta: &solana.TransactionMeta{
			PreBalances:  []uint64{pre},
			PostBalances: []uint64{uint64(int64(pre) + delta)},
		},
		Transaction: solana.Transaction{
			Message: solana.TransactionMessage{AccountKeys: []string{wallet}},
		},
	}
}

func sig(name string) solana.SignatureInfo {
	return solana.SignatureInfo{Signature: name}
}

func failedSig(name string) solana.SignatureInfo {
	return solana.SignatureInfo{Signature: name, Err: []byte(`{"InstructionError":[0,"Custom"]}`)}
}

func newTestWatcher(chain *stubChain, deposits *stubDepositStore, rates *stubRates, agg *stubEventStore, locks *stubLocks) *Watcher {
	engine := newTestEngine(agg, nil, nil)
	return NewWatcher(chain, deposits, rates, engine, locks, nil, nil, WatcherConfig{
		Wallet:         testWallet,
		AggregateID:    1,
		PollInterval:   time.Second,
		SignatureLimit: 10,
		LockTTL:        time.Minute,
	}, testLogger())
}

func TestWatcherPollOnceRecordsIncomingDeposit(t *testing.T) {
	agg := &stubEventStore{balance: decimal.Zero}
	chain := &stubChain{
		sigs: []solana.SignatureInfo{sig("tx1")},
		txs:  map[string]*solana.TransactionResult{"tx1": transferTx(testWallet, 2 * domain.LamportsPerSol)},
	}
	deposits := newStubDepositStore(agg)
	rates := &stubRates{rate: decimal.NewFromInt(150)}

	w := newTestWatcher(chain, deposits, rates, agg, &stubLocks{})
	require.NoError(t, w.PollOnce(context.Background()))

	require.Len(t, deposits.deposits, 1)
	d := deposits.deposits["tx1"]
	assert.Equal(t, int64(2*domain.LamportsPerSol), d.AmountLamports)
	assert.True(t, d.AmountSol.Equal(decimal.NewFromInt(2)))
	assert.True(t, d.AmountUSD.Equal(decimal.NewFromInt(300)))
	assert.Empty(t, agg.events, "300 USD stays below the threshold")
}

func TestWatcherPollOnceFiresEventWhenThresholdCrossed(t *testing.T) {
	agg := &stubEventStore{balance: decimal.Zero}
	// getSignaturesForAddress returns newest first.
	chain := &stubChain{
		sigs: []solana.SignatureInfo{sig("newer"), sig("older")},
		txs: map[string]*solana.TransactionResult{
			"older": transferTx(testWallet, 3*domain.LamportsPerSol),
			"newer": transferTx(testWallet, 1*domain.LamportsPerSol),
		},
	}
	deposits := newStubDepositStore(agg)
	rates := &stubRates{rate: decimal.NewFromInt(150)}

	w := newTestWatcher(chain, deposits, rates, agg, &stubLocks{})
	require.NoError(t, w.PollOnce(context.Background()))

	assert.Equal(t, []string{"older", "newer"}, deposits.order, "deposits land in chain order")
	require.Len(t, agg.events, 1, "450 + 150 USD crosses the 500 threshold once")
	assert.True(t, agg.balance.Equal(decimal.NewFromInt(100)))
}

func TestWatcherPollOnceSkipsKnownSignatures(t *testing.T) {
	agg := &stubEventStore{balance: decimal.Zero}
	deposits := newStubDepositStore(agg)
	_, err := deposits.Record(context.Background(), domain.FeeDeposit{TxSig: "tx1", AmountUSD: decimal.Zero}, 1)
	require.NoError(t, err)

	chain := &stubChain{sigs: []solana.SignatureInfo{sig("tx1")}}
	w := newTestWatcher(chain, deposits, &stubRates{rate: decimal.NewFromInt(150)}, agg, &stubLocks{})
	require.NoError(t, w.PollOnce(context.Background()))

	assert.Empty(t, chain.txCalls, "known signature must not be refetched")
}

func TestWatcherPollOnceSkipsFailedSignatures(t *testing.T) {
	agg := &stubEventStore{balance: decimal.Zero}
	chain := &stubChain{sigs: []solana.SignatureInfo{failedSig("tx1")}}
	deposits := newStubDepositStore(agg)

	w := newTestWatcher(chain, deposits, &stubRates{rate: decimal.NewFromInt(150)}, agg, &stubLocks{})
	require.NoError(t, w.PollOnce(context.Background()))

	assert.Empty(t, chain.txCalls)
	assert.Empty(t, deposits.deposits)
}

func TestWatcherPollOnceSkipsOutgoingTransfers(t *testing.T) {
	agg := &stubEventStore{balance: decimal.Zero}
	chain := &stubChain{
		sigs: []solana.SignatureInfo{sig("tx1")},
		txs:  map[string]*solana.TransactionResult{"tx1": transferTx(testWallet, -domain.LamportsPerSol)},
	}
	deposits := newStubDepositStore(agg)
	rates := &stubRates{rate: decimal.NewFromInt(150)}

	w := newTestWatcher(chain, deposits, rates, agg, &stubLocks{})
	require.NoError(t, w.PollOnce(context.Background()))

	assert.Empty(t, deposits.deposits)
	assert.Zero(t, rates.calls, "no rate lookup for outgoing transfers")
}

func TestWatcherPollOnceSkipsWhenLockHeld(t *testing.T) {
	agg := &stubEventStore{balance: decimal.Zero}
	chain := &stubChain{sigs: []solana.SignatureInfo{sig("tx1")}}

	w := newTestWatcher(chain, newStubDepositStore(agg), &stubRates{}, agg, &stubLocks{held: true})
	require.NoError(t, w.PollOnce(context.Background()))

	assert.Zero(t, chain.sigCalls, "poll must not run without the lock")
}

func TestWatcherPollOnceIsolatesBadTransactions(t *testing.T) {
	agg := &stubEventStore{balance: decimal.Zero}
	chain := &stubChain{
		sigs: []solana.SignatureInfo{sig("newer"), sig("older")},
		txs: map[string]*solana.TransactionResult{
			"newer": transferTx(testWallet, domain.LamportsPerSol),
		},
		txErrs: map[string]error{"older": errors.New("rpc timeout")},
	}
	deposits := newStubDepositStore(agg)

	w := newTestWatcher(chain, deposits, &stubRates{rate: decimal.NewFromInt(150)}, agg, &stubLocks{})
	require.NoError(t, w.PollOnce(context.Background()))

	require.Len(t, deposits.deposits, 1, "one bad transaction must not stop the batch")
	assert.Contains(t, deposits.deposits, "newer")
}

// signalChain counts ingestion passes and reports each one on a channel, so
// tests can observe a running watcher without racing it.
type signalChain struct {
	mu     sync.Mutex
	passes int
	passed chan struct{}
}

func (c *signalChain) GetSignaturesForAddress(context.Context, string, int) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	c.passes++
	c.mu.Unlock()
	select {
	case c.passed <- struct{}{}:
	default:
	}
	return nil, nil
}

func (c *signalChain) GetTransaction(context.Context, string) (*solana.TransactionResult, error) {
	return nil, nil
}

type stubNotifier struct {
	signals chan struct{}
	err     error
	address string
}

func (n *stubNotifier) SubscribeAccount(_ context.Context, address string) (<-chan struct{}, error) {
	n.address = address
	if n.err != nil {
		return nil, n.err
	}
	return n.signals, nil
}

func newPushWatcher(chain ChainReader, push AccountNotifier, pollInterval time.Duration) *Watcher {
	agg := &stubEventStore{balance: decimal.Zero}
	engine := newTestEngine(agg, nil, nil)
	return NewWatcher(chain, newStubDepositStore(agg), &stubRates{rate: decimal.NewFromInt(150)}, engine, &stubLocks{}, push, nil, WatcherConfig{
		Wallet:         testWallet,
		AggregateID:    1,
		PollInterval:   pollInterval,
		SignatureLimit: 10,
		LockTTL:        time.Minute,
	}, testLogger())
}

func waitForPass(t *testing.T, passed <-chan struct{}) {
	t.Helper()
	select {
	case <-passed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an ingestion pass")
	}
}

func TestWatcherRunIngestsOnAccountChangeSignal(t *testing.T) {
	chain := &signalChain{passed: make(chan struct{}, 8)}
	push := &stubNotifier{signals: make(chan struct{}, 1)}
	w := newPushWatcher(chain, push, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitForPass(t, chain.passed) // startup pass

	push.signals <- struct{}{}
	waitForPass(t, chain.passed) // long before the hour ticker fires

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, testWallet, push.address)

	chain.mu.Lock()
	defer chain.mu.Unlock()
	assert.Equal(t, 2, chain.passes)
}

func TestWatcherRunDegradesToPollingOnSubscribeFailure(t *testing.T) {
	chain := &signalChain{passed: make(chan struct{}, 8)}
	push := &stubNotifier{err: errors.New("ws endpoint down")}
	w := newPushWatcher(chain, push, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitForPass(t, chain.passed)
	cancel()
	require.NoError(t, <-done)
}

func TestWatcherRunKeepsTickingAfterSubscriptionEnds(t *testing.T) {
	chain := &signalChain{passed: make(chan struct{}, 8)}
	push := &stubNotifier{signals: make(chan struct{})}
	w := newPushWatcher(chain, push, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitForPass(t, chain.passed) // startup pass
	close(push.signals)
	waitForPass(t, chain.passed) // ticker still drives passes

	cancel()
	require.NoError(t, <-done)
}
