package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degenflap/feeflow/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type putCall struct {
	path        string
	contentType string
	data        []byte
}

type stubWriter struct {
	puts []putCall
	err  error
}

func (w *stubWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts = append(w.puts, putCall{path: path, contentType: contentType, data: buf})
	return nil
}

// stubReader answers Exists for the paths it has been told about, standing in
// for the read-back verification of uploads.
type stubReader struct {
	existing map[string]bool
	err      error
	checked  []string
}

func (r *stubReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

func (r *stubReader) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func (r *stubReader) Exists(_ context.Context, path string) (bool, error) {
	r.checked = append(r.checked, path)
	if r.err != nil {
		return false, r.err
	}
	return r.existing[path], nil
}

// mirrorReader reports every path as present, mimicking a healthy backend.
type mirrorReader struct{}

func (mirrorReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

func (mirrorReader) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func (mirrorReader) Exists(context.Context, string) (bool, error) {
	return true, nil
}

type stubDeposits struct {
	deposits []domain.FeeDeposit
}

func (s *stubDeposits) ListBefore(context.Context, time.Time) ([]domain.FeeDeposit, error) {
	return s.deposits, nil
}

type stubEvents struct {
	events []domain.GameEvent
}

func (s *stubEvents) ListBefore(context.Context, time.Time) ([]domain.GameEvent, error) {
	return s.events, nil
}

type stubPayouts struct {
	payouts []domain.PayoutDetail
}

func (s *stubPayouts) ListSettledBefore(context.Context, time.Time) ([]domain.PayoutDetail, error) {
	return s.payouts, nil
}

func TestArchiveDepositsUploadsJSONL(t *testing.T) {
	writer := &stubWriter{}
	deposits := &stubDeposits{deposits: []domain.FeeDeposit{
		{ID: 1, TxSig: "sig1", AmountLamports: 1_000_000_000, AmountSol: decimal.NewFromInt(1)},
		{ID: 2, TxSig: "sig2", AmountLamports: 2_000_000_000, AmountSol: decimal.NewFromInt(2)},
	}}
	a := NewArchiver(writer, mirrorReader{}, deposits, &stubEvents{}, &stubPayouts{}, testLogger())

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveDeposits(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.Len(t, writer.puts, 1)
	assert.Equal(t, "archive/deposits/2026-08.jsonl", writer.puts[0].path)
	assert.Equal(t, "application/x-ndjson", writer.puts[0].contentType)

	lines := bytes.Split(bytes.TrimSpace(writer.puts[0].data), []byte("\n"))
	require.Len(t, lines, 2)
	var first domain.FeeDeposit
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "sig1", first.TxSig)
}

func TestArchiveDepositsNothingToArchive(t *testing.T) {
	writer := &stubWriter{}
	a := NewArchiver(writer, mirrorReader{}, &stubDeposits{}, &stubEvents{}, &stubPayouts{}, testLogger())

	count, err := a.ArchiveDeposits(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.puts, "no empty files in cold storage")
}

func TestArchiveEventsUploadFailure(t *testing.T) {
	writer := &stubWriter{err: errors.New("bucket unavailable")}
	events := &stubEvents{events: []domain.GameEvent{{ID: 1, Type: domain.EventMegaGreenCandle}}}
	a := NewArchiver(writer, mirrorReader{}, &stubDeposits{}, events, &stubPayouts{}, testLogger())

	_, err := a.ArchiveEvents(context.Background(), time.Now())

	assert.Error(t, err)
}

func TestArchiveDepositsVerifiesUpload(t *testing.T) {
	writer := &stubWriter{}
	reader := &stubReader{existing: map[string]bool{"archive/deposits/2026-08.jsonl": true}}
	deposits := &stubDeposits{deposits: []domain.FeeDeposit{{ID: 1, TxSig: "sig1"}}}
	a := NewArchiver(writer, reader, deposits, &stubEvents{}, &stubPayouts{}, testLogger())

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveDeposits(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, []string{"archive/deposits/2026-08.jsonl"}, reader.checked,
		"upload is read back before the count is reported")
}

func TestArchiveDepositsFailsWhenUploadMissing(t *testing.T) {
	// A write the backend accepted but never stored must not count as
	// archived, or the caller would prune rows that exist nowhere.
	writer := &stubWriter{}
	reader := &stubReader{existing: map[string]bool{}}
	deposits := &stubDeposits{deposits: []domain.FeeDeposit{{ID: 1, TxSig: "sig1"}}}
	a := NewArchiver(writer, reader, deposits, &stubEvents{}, &stubPayouts{}, testLogger())

	count, err := a.ArchiveDeposits(context.Background(), time.Now())

	require.Error(t, err)
	assert.Zero(t, count)
	require.Len(t, writer.puts, 1, "the upload itself went out")
}

func TestArchivePayoutsPath(t *testing.T) {
	writer := &stubWriter{}
	payouts := &stubPayouts{payouts: []domain.PayoutDetail{
		{Payout: domain.Payout{ID: "p1", Status: domain.PayoutStatusSent}, WalletAddress: "wallet"},
	}}
	a := NewArchiver(writer, mirrorReader{}, &stubDeposits{}, &stubEvents{}, payouts, testLogger())

	cutoff := time.Date(2025, 12, 15, 3, 0, 0, 0, time.UTC)
	count, err := a.ArchivePayouts(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, writer.puts, 1)
	assert.Equal(t, "archive/payouts/2025-12.jsonl", writer.puts[0].path)
}
