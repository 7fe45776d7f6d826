package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/degenflap/feeflow/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the time-ranged query methods it actually calls,
// not the full domain store interfaces. The Postgres stores satisfy these
// implicitly.
// ---------------------------------------------------------------------------

// DepositArchiveStore provides read access to fee deposits for archival.
type DepositArchiveStore interface {
	// ListBefore returns all deposits observed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.FeeDeposit, error)
}

// EventArchiveStore provides read access to game events for archival.
type EventArchiveStore interface {
	// ListBefore returns all events triggered strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.GameEvent, error)
}

// PayoutArchiveStore provides read access to settled payouts for archival.
type PayoutArchiveStore interface {
	// ListSettledBefore returns all SENT payouts last updated strictly
	// before the cutoff. PENDING and FAILED rows stay live.
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.PayoutDetail, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// old records, serializing them to JSONL, and uploading the result to S3.
// Every upload is read back through the blob reader before the count is
// reported; the caller prunes archived rows based on that count.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	reader   domain.BlobReader
	deposits DepositArchiveStore
	events   EventArchiveStore
	payouts  PayoutArchiveStore
	logger   *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	deposits DepositArchiveStore,
	events EventArchiveStore,
	payouts PayoutArchiveStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		reader:   reader,
		deposits: deposits,
		events:   events,
		payouts:  payouts,
		logger:   logger,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveDeposits queries all fee deposits before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/deposits/YYYY-MM.jsonl.
// The count of archived records is returned.
func (a *ArchiveImpl) ArchiveDeposits(ctx context.Context, before time.Time) (int64, error) {
	deposits, err := a.deposits.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive deposits query: %w", err)
	}
	if len(deposits) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(deposits)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive deposits marshal: %w", err)
	}

	path := archivePath("deposits", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive deposits: %w", err)
	}

	count := int64(len(deposits))
	a.logArchived(ctx, "deposits", path, count, before)
	return count, nil
}

// ArchiveEvents queries all game events before the cutoff, serializes them to
// JSONL, and uploads the file to S3 at archive/events/YYYY-MM.jsonl. The
// count of archived records is returned.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive events: %w", err)
	}

	count := int64(len(events))
	a.logArchived(ctx, "events", path, count, before)
	return count, nil
}

// ArchivePayouts queries all settled payouts before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/payouts/YYYY-MM.jsonl.
// The count of archived records is returned.
func (a *ArchiveImpl) ArchivePayouts(ctx context.Context, before time.Time) (int64, error) {
	payouts, err := a.payouts.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive payouts query: %w", err)
	}
	if len(payouts) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(payouts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive payouts marshal: %w", err)
	}

	path := archivePath("payouts", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive payouts: %w", err)
	}

	count := int64(len(payouts))
	a.logArchived(ctx, "payouts", path, count, before)
	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// multipartWriter is the optional large-payload upload path of the writer.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// upload writes the JSONL buffer and confirms the object is actually there
// before the archive is reported as complete. Rows are pruned only after a
// reported archive, so a write the backend silently dropped has to surface
// as an error here. Months that grew past the multipart floor take the
// multipart path.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	const contentType = "application/x-ndjson"

	if mp, ok := a.writer.(multipartWriter); ok && int64(len(buf)) >= minPartSize {
		if err := mp.PutMultipart(ctx, path, bytes.NewReader(buf), contentType, minPartSize); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
	} else if err := a.writer.Put(ctx, path, bytes.NewReader(buf), contentType); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("verify %s: object missing after upload", path)
	}
	return nil
}

func (a *ArchiveImpl) logArchived(ctx context.Context, kind, path string, count int64, before time.Time) {
	a.logger.InfoContext(ctx, "archive uploaded",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before),
	)
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/deposits/2025-01.jsonl
//	archive/events/2025-01.jsonl
//	archive/payouts/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
