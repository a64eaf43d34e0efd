// Package scheduler implements the ledger retention sweep.
//
// Terminal messages older than the retention window are exported to
// zstd-compressed NDJSON archives and then pruned from the ledger, one
// batch at a time. Pending records are never touched: the store only
// surfaces terminal rows. A batch is deleted only after its archive file
// is fully written and synced, so a failure at any point leaves the rows
// in place for the next run.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"herald/internal/types"
)

// RetentionStore is the slice of the ledger contract the sweep needs.
// Both ledger stores satisfy it.
type RetentionStore interface {
	// ListTerminalBefore returns up to limit terminal records created
	// before cutoff, oldest first.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Message, error)

	// DeleteByIDs removes the given records and reports how many existed.
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// RetentionService archives and prunes expired ledger records.
type RetentionService struct {
	store  RetentionStore
	dir    string
	logger *slog.Logger
}

// NewRetentionService creates the sweep service. Archives are written
// under dir, which is created on first use.
func NewRetentionService(store RetentionStore, dir string, logger *slog.Logger) *RetentionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionService{
		store:  store,
		dir:    dir,
		logger: logger,
	}
}

// Sweep exports and deletes terminal records created before now-retention,
// batchSize records at a time, until a short batch signals the backlog is
// drained. Returns the total number of records pruned.
//
// A failed archive write aborts the sweep before any delete. A failed
// delete aborts after the archive is on disk; the next sweep exports those
// rows again, which duplicates archive data but never loses it.
func (s *RetentionService) Sweep(ctx context.Context, now time.Time, retention time.Duration, batchSize int) (int, error) {
	cutoff := now.Add(-retention)
	total := 0

	for {
		batch, err := s.store.ListTerminalBefore(ctx, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("listing expired messages: %w", err)
		}

		if len(batch) == 0 {
			break
		}

		path, err := s.writeArchive(batch, now)
		if err != nil {
			return total, fmt.Errorf("archiving message batch: %w", err)
		}

		ids := make([]int64, len(batch))
		for i, m := range batch {
			ids[i] = m.ID
		}

		deleted, err := s.store.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("pruning archived messages: %w", err)
		}

		total += int(deleted)

		s.logger.InfoContext(ctx, "archived message batch",
			"batch_size", len(batch),
			"deleted", deleted,
			"archive", path,
			"total_pruned", total,
		)

		// A short batch means the backlog is drained.
		if len(batch) < batchSize {
			break
		}
	}

	if total == 0 {
		s.logger.InfoContext(ctx, "no expired messages to archive",
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}

	return total, nil
}

// writeArchive serializes one batch to a new archive file and returns its
// path. The file is synced before the method reports success; on any
// failure the partial file is removed.
func (s *RetentionService) writeArchive(batch []*types.Message, now time.Time) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	name := fmt.Sprintf("messages-%s-%s.ndjson.zst",
		now.UTC().Format("20060102T150405Z"), uuid.NewString())
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating archive file: %w", err)
	}

	if err := writeCompressedNDJSON(f, batch); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("syncing archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing archive file: %w", err)
	}

	return path, nil
}

// writeCompressedNDJSON writes one JSON document per message through a
// zstd stream.
func writeCompressedNDJSON(w io.Writer, batch []*types.Message) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	for _, m := range batch {
		if err := enc.Encode(m); err != nil {
			zw.Close()
			return fmt.Errorf("encoding message %d: %w", m.ID, err)
		}
	}

	return zw.Close()
}
