package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only requires the query methods it actually calls, not the
// full domain store interfaces. The Postgres stores satisfy these implicitly
// through their ListBefore / DeleteBefore methods.
// ---------------------------------------------------------------------------

// TradeArchiveStore provides read and prune access to trades for archival.
type TradeArchiveStore interface {
	// ListBefore returns all trades closed strictly before the cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
	// DeleteBefore removes archived trades from the primary store.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditArchiveStore provides read and prune access to the audit log for
// archival.
type AuditArchiveStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// old records, serializing them to JSONL, and uploading the result to S3.
//
// Records are deleted from the primary store only after the upload succeeds;
// an upload failure leaves the rows in place for the next run.
type ArchiveImpl struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
	audit  AuditArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, audit AuditArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		trades: trades,
		audit:  audit,
	}
}

// ArchiveTrades queries all trades closed before the cutoff, serializes them
// to JSONL, uploads the batch to S3, and then prunes the archived rows. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive trades prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// ArchiveAudit queries all audit entries created before the cutoff,
// serializes them to JSONL, uploads the batch to S3, and then prunes the
// archived rows. The count of archived records is returned.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive audit prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit audit log: %w", err)
	}

	return count, nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive batch, partitioned by the
// year-month of the cutoff with a per-pass timestamp suffix so repeated runs
// within a month never overwrite an earlier batch.
//
//	archive/trades/2025-01/20250114T060000Z.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl",
		kind,
		before.Format("2006-01"),
		time.Now().UTC().Format("20060102T150405Z"),
	)
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
