package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubBlobArchiver struct {
	depositCount int64
	eventCount   int64
	payoutCount  int64
	depositErr   error
	calls        []string
}

func (a *stubBlobArchiver) ArchiveDeposits(_ context.Context, _ time.Time) (int64, error) {
	a.calls = append(a.calls, "archive-deposits")
	return a.depositCount, a.depositErr
}

func (a *stubBlobArchiver) ArchiveEvents(_ context.Context, _ time.Time) (int64, error) {
	a.calls = append(a.calls, "archive-events")
	return a.eventCount, nil
}

func (a *stubBlobArchiver) ArchivePayouts(_ context.Context, _ time.Time) (int64, error) {
	a.calls = append(a.calls, "archive-payouts")
	return a.payoutCount, nil
}

type stubPruner struct {
	name    string
	deleted int64
	log     *[]string
}

func (p *stubPruner) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	*p.log = append(*p.log, p.name)
	return p.deleted, nil
}

func (p *stubPruner) DeleteSettledBefore(_ context.Context, _ time.Time) (int64, error) {
	*p.log = append(*p.log, p.name)
	return p.deleted, nil
}

func TestArchiverRunPrunesAfterUpload(t *testing.T) {
	blob := &stubBlobArchiver{depositCount: 5, eventCount: 2, payoutCount: 3}
	a := NewArchiver(blob,
		&stubPruner{name: "prune-deposits", log: &blob.calls},
		&stubPruner{name: "prune-events", log: &blob.calls},
		&stubPruner{name: "prune-payouts", log: &blob.calls},
		90, testLogger())

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, []string{
		"archive-deposits", "prune-deposits",
		"archive-events", "prune-events",
		"archive-payouts", "prune-payouts",
	}, blob.calls, "every prune follows its successful upload")
}

func TestArchiverRunSkipsPruneWhenNothingArchived(t *testing.T) {
	blob := &stubBlobArchiver{depositCount: 0, eventCount: 1, payoutCount: 0}
	a := NewArchiver(blob,
		&stubPruner{name: "prune-deposits", log: &blob.calls},
		&stubPruner{name: "prune-events", log: &blob.calls},
		&stubPruner{name: "prune-payouts", log: &blob.calls},
		90, testLogger())

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, []string{
		"archive-deposits",
		"archive-events", "prune-events",
		"archive-payouts",
	}, blob.calls)
}

func TestArchiverRunUploadFailureStopsBeforePrune(t *testing.T) {
	blob := &stubBlobArchiver{depositCount: 5, depositErr: errors.New("bucket unavailable")}
	a := NewArchiver(blob,
		&stubPruner{name: "prune-deposits", log: &blob.calls},
		&stubPruner{name: "prune-events", log: &blob.calls},
		&stubPruner{name: "prune-payouts", log: &blob.calls},
		90, testLogger())

	err := a.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, []string{"archive-deposits"}, blob.calls, "a failed upload must not prune anything")
}

func TestArchiverRunCronRejectsBadExpression(t *testing.T) {
	a := NewArchiver(&stubBlobArchiver{}, nil, nil, nil, 90, testLogger())
	err := a.RunCron(context.Background(), "not a cron")
	assert.Error(t, err)
}
