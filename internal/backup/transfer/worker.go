package transfer

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onemirror/onemirror/internal/api"
	"github.com/onemirror/onemirror/internal/backup/stats"
	"github.com/onemirror/onemirror/internal/errors"
	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

// Outcome describes how a transfer job ended.
type Outcome int

const (
	OutcomeDownloaded Outcome = iota
	OutcomeSkipped
)

// Result reports a completed transfer job.
type Result struct {
	Job     types.TransferJob
	Outcome Outcome
	Bytes   int64
	Resumed bool
}

// Config configures a transfer worker.
type Config struct {
	Client       *api.Client
	Policies     *PolicyCell
	Counters     *stats.Counters
	Logger       logging.Logger
	Profile      string
	ChunkSizeMB  int
	MaxRetries   int
	RetryDelayMs int
	DryRun       bool
}

// Worker downloads files to their destinations. Content requests carry
// their own retry loop here instead of inside the API client so that
// size verification failures share the same backoff budget as network
// errors.
type Worker struct {
	client         *api.Client
	policies       *PolicyCell
	counters       *stats.Counters
	logger         logging.Logger
	profile        string
	chunkSize      int64
	largeThreshold int64
	maxRetries     int
	retryDelay     time.Duration
	dryRun         bool
}

// NewWorker creates a transfer worker.
func NewWorker(config Config) *Worker {
	if config.Logger == nil {
		config.Logger = logging.NewNoOpLogger()
	}
	if config.Counters == nil {
		config.Counters = stats.NewCounters()
	}
	if config.ChunkSizeMB <= 0 {
		config.ChunkSizeMB = utils.DefaultChunkSizeMB
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = utils.DefaultMaxRetries
	}
	if config.RetryDelayMs <= 0 {
		config.RetryDelayMs = utils.DefaultRetryDelayMs
	}

	return &Worker{
		client:         config.Client,
		policies:       config.Policies,
		counters:       config.Counters,
		logger:         config.Logger,
		profile:        config.Profile,
		chunkSize:      int64(config.ChunkSizeMB) * 1024 * 1024,
		largeThreshold: utils.LargeFileThresholdBytes,
		maxRetries:     config.MaxRetries,
		retryDelay:     time.Duration(config.RetryDelayMs) * time.Millisecond,
		dryRun:         config.DryRun,
	}
}

// Transfer executes one download job.
func (w *Worker) Transfer(ctx context.Context, job types.TransferJob) (Result, error) {
	result := Result{Job: job}
	logger := w.logger

	proceed, err := w.shouldTransfer(job)
	if err != nil {
		w.counters.AddErrors(1)
		return result, err
	}
	if !proceed {
		logger.Debug("Skipping existing file",
			logging.F("path", job.RelativePath),
			logging.F("policy", w.policies.effectivePolicy(job.Policy).String()),
		)
		w.counters.AddSkipped(1)
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	if w.dryRun {
		logger.Info("Would download",
			logging.F("path", job.RelativePath),
			logging.F("size", job.ExpectedSize),
		)
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	if err := os.MkdirAll(filepath.Dir(job.DestinationPath), 0755); err != nil {
		w.counters.AddErrors(1)
		return result, fmt.Errorf("failed to create destination directory: %w", err)
	}

	start := time.Now()
	// Bytes credited to the run: a resumed chunked download only counts
	// what this run actually fetched.
	bytes := job.ExpectedSize
	if job.ExpectedSize >= w.largeThreshold {
		bytes, result.Resumed, err = w.downloadChunkedWithRetry(ctx, job)
	} else {
		err = w.withRetry(ctx, job, func() error {
			return w.downloadWhole(ctx, job)
		})
	}
	if err != nil {
		// An item deleted remotely between enumeration and download is
		// already absent; nothing to back up.
		if isNotFound(err) {
			logger.Warn("Remote item vanished, skipping",
				logging.F("path", job.RelativePath),
				logging.F("remoteId", job.RemoteID),
			)
			w.counters.AddSkipped(1)
			result.Outcome = OutcomeSkipped
			return result, nil
		}
		w.counters.AddErrors(1)
		return result, err
	}

	if !job.LastModified.IsZero() {
		if err := os.Chtimes(job.DestinationPath, job.LastModified, job.LastModified); err != nil {
			logger.Warn("Failed to set file times",
				logging.F("path", job.DestinationPath),
				logging.F("error", err.Error()),
			)
		}
	}

	w.counters.AddProcessed(1)
	w.counters.AddBytes(bytes)
	result.Outcome = OutcomeDownloaded
	result.Bytes = bytes

	logger.Debug("Downloaded file",
		logging.F("path", job.RelativePath),
		logging.F("size", job.ExpectedSize),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
	)
	return result, nil
}

// shouldTransfer applies the overwrite policy against the destination.
// A directory sitting where a file belongs is removed outright; the
// remote tree is authoritative for its own paths.
func (w *Worker) shouldTransfer(job types.TransferJob) (bool, error) {
	info, err := os.Lstat(job.DestinationPath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat destination: %w", err)
	}

	if info.IsDir() {
		w.logger.Warn("Replacing directory with file",
			logging.F("path", job.DestinationPath),
		)
		if err := os.RemoveAll(job.DestinationPath); err != nil {
			return false, fmt.Errorf("failed to remove conflicting directory: %w", err)
		}
		return true, nil
	}

	switch w.policies.effectivePolicy(job.Policy) {
	case types.OverwriteAlways:
		return true, nil
	case types.OverwriteIfNewer:
		return job.LastModified.After(info.ModTime()), nil
	default:
		return false, nil
	}
}

// withRetry runs fn with the transfer retry budget. Size mismatches are
// retried like transient network errors.
func (w *Worker) withRetry(ctx context.Context, job types.TransferJob, fn func() error) error {
	var lastErr error
	delay := time.Duration(0)

	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryableTransfer(lastErr) {
			return lastErr
		}

		if attempt < w.maxRetries {
			delay = api.Backoff(w.retryDelay, delay, lastErr)
			w.logger.Warn("Transfer failed, retrying",
				logging.F("path", job.RelativePath),
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeExhaustedRetries, lastErr.Error()).
		WithContext("path", job.RelativePath).
		WithContext("attempts", w.maxRetries+1).
		Build())
}

func isNotFound(err error) bool {
	if utils.CodeOf(err) == utils.ErrCodeNotFound {
		return true
	}
	var gerr *errors.GraphError
	return stderrors.As(err, &gerr) && gerr.Status == http.StatusNotFound
}

func isRetryableTransfer(err error) bool {
	if errors.IsRetryable(err) {
		return true
	}
	return utils.CodeOf(err) == utils.ErrCodeSizeMismatch
}

// downloadWhole streams the full file to a temp path, verifies its
// size, and commits it with an atomic rename.
func (w *Worker) downloadWhole(ctx context.Context, job types.TransferJob) error {
	reqCtx := api.NewRequestContext(w.profile, types.RequestTypeContent)
	w.client.WithItemIDs(reqCtx, job.RemoteID)

	body, _, err := w.client.Content(ctx, reqCtx, job.RemoteID)
	if err != nil {
		return err
	}
	defer body.Close()

	partial := job.DestinationPath + utils.PartialSuffix
	file, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	written, copyErr := io.Copy(file, body)
	if copyErr == nil {
		copyErr = file.Sync()
	}
	if closeErr := file.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(partial)
		return &errors.GraphError{Status: 503, Message: copyErr.Error()}
	}

	if written != job.ExpectedSize {
		os.Remove(partial)
		return sizeMismatchError(job, written)
	}

	if err := os.Rename(partial, job.DestinationPath); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to commit download: %w", err)
	}
	return nil
}

func sizeMismatchError(job types.TransferJob, got int64) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeSizeMismatch,
		fmt.Sprintf("downloaded %d bytes, expected %d", got, job.ExpectedSize)).
		WithRetryable(true).
		WithContext("path", job.RelativePath).
		Build())
}
