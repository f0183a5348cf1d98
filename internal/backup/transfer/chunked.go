package transfer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/onemirror/onemirror/internal/api"
	"github.com/onemirror/onemirror/internal/errors"
	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

// downloadChunkedWithRetry downloads a large file in ranged chunks,
// checkpointing after each one so an interrupted run resumes instead
// of starting over. Returns the bytes fetched by this run, which is
// less than the file size when a checkpoint was resumed, and whether
// progress was resumed.
func (w *Worker) downloadChunkedWithRetry(ctx context.Context, job types.TransferJob) (int64, bool, error) {
	partial := job.DestinationPath + utils.PartialSuffix

	offset := w.resumeOffset(job, partial)
	resumed := offset > 0
	startOffset := offset

	if resumed {
		w.logger.Info("Resuming chunked download",
			logging.F("path", job.RelativePath),
			logging.F("offset", offset),
			logging.F("total", job.ExpectedSize),
		)
	}

	file, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, resumed, fmt.Errorf("failed to open temp file: %w", err)
	}
	if err := file.Truncate(offset); err != nil {
		file.Close()
		return 0, resumed, fmt.Errorf("failed to truncate temp file: %w", err)
	}

	for offset < job.ExpectedSize {
		end := offset + w.chunkSize
		if end > job.ExpectedSize {
			end = job.ExpectedSize
		}

		chunkStart := offset
		err := w.withRetry(ctx, job, func() error {
			return w.downloadChunk(ctx, job, file, chunkStart, end)
		})
		if err != nil {
			file.Close()
			return 0, resumed, err
		}

		if err := file.Sync(); err != nil {
			file.Close()
			return 0, resumed, fmt.Errorf("failed to sync chunk: %w", err)
		}
		if err := SaveCheckpoint(job.DestinationPath, &Checkpoint{
			RemoteID:     job.RemoteID,
			BytesWritten: end,
			TotalSize:    job.ExpectedSize,
		}); err != nil {
			w.logger.Warn("Failed to write checkpoint",
				logging.F("path", job.RelativePath),
				logging.F("error", err.Error()),
			)
		}

		offset = end
	}

	if err := file.Close(); err != nil {
		return 0, resumed, fmt.Errorf("failed to close temp file: %w", err)
	}

	info, err := os.Stat(partial)
	if err != nil {
		return 0, resumed, fmt.Errorf("failed to stat temp file: %w", err)
	}
	if info.Size() != job.ExpectedSize {
		os.Remove(partial)
		RemoveCheckpoint(job.DestinationPath)
		return 0, resumed, sizeMismatchError(job, info.Size())
	}

	if err := os.Rename(partial, job.DestinationPath); err != nil {
		os.Remove(partial)
		return 0, resumed, fmt.Errorf("failed to commit download: %w", err)
	}
	RemoveCheckpoint(job.DestinationPath)
	return job.ExpectedSize - startOffset, resumed, nil
}

// resumeOffset validates any existing checkpoint against the job and
// the partial file on disk. A checkpoint for a different remote item
// or size, or one claiming more bytes than the partial file holds, is
// discarded along with the stale partial.
func (w *Worker) resumeOffset(job types.TransferJob, partial string) int64 {
	cp := LoadCheckpoint(job.DestinationPath)
	if !cp.Matches(job.RemoteID, job.ExpectedSize) {
		RemoveCheckpoint(job.DestinationPath)
		os.Remove(partial)
		return 0
	}

	info, err := os.Stat(partial)
	if err != nil || info.Size() < cp.BytesWritten {
		RemoveCheckpoint(job.DestinationPath)
		os.Remove(partial)
		return 0
	}

	return cp.BytesWritten
}

// downloadChunk fetches the half-open range [start, end) and writes it
// at the matching file offset. Each attempt rewrites the whole chunk.
func (w *Worker) downloadChunk(ctx context.Context, job types.TransferJob, file *os.File, start, end int64) error {
	reqCtx := api.NewRequestContext(w.profile, types.RequestTypeContent)
	w.client.WithItemIDs(reqCtx, job.RemoteID)

	body, _, err := w.client.ContentRange(ctx, reqCtx, job.RemoteID, start, end)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	written, err := io.Copy(file, io.LimitReader(body, end-start))
	if err != nil {
		return &errors.GraphError{Status: 503, Message: err.Error()}
	}
	if written != end-start {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeSizeMismatch,
			fmt.Sprintf("chunk returned %d bytes, expected %d", written, end-start)).
			WithRetryable(true).
			WithContext("path", job.RelativePath).
			Build())
	}
	return nil
}
