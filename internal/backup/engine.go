package backup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/onemirror/onemirror/internal/backup/exclude"
	"github.com/onemirror/onemirror/internal/backup/stats"
	"github.com/onemirror/onemirror/internal/backup/transfer"
	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
)

// Enumerator lists remote folder contents.
type Enumerator interface {
	ListChildren(ctx context.Context, folderID, parentPath string) ([]types.RemoteNode, error)
}

// Transferer executes a single download job.
type Transferer interface {
	Transfer(ctx context.Context, job types.TransferJob) (transfer.Result, error)
}

// Options describes one backup run.
type Options struct {
	FolderID      string // remote folder to back up
	Destination   string // local directory receiving the mirror
	Policy        types.OverwritePolicy
	IncludeShared bool
	DryRun        bool
}

// Config wires an engine together.
type Config struct {
	Enumerator Enumerator
	Transferer Transferer
	Dispatcher Dispatcher
	Excludes   *exclude.Set
	Counters   *stats.Counters
	Logger     logging.Logger
}

// Engine walks a remote folder tree and mirrors it to local disk.
// Folders recurse depth-first one at a time; the files inside each
// folder fan out through the dispatcher. Errors on individual files or
// subfolders are counted and logged but never stop the walk.
type Engine struct {
	enumerator Enumerator
	transferer Transferer
	dispatcher Dispatcher
	excludes   *exclude.Set
	counters   *stats.Counters
	logger     logging.Logger
}

// New creates a backup engine.
func New(config Config) *Engine {
	if config.Excludes == nil {
		config.Excludes = exclude.New()
	}
	if config.Counters == nil {
		config.Counters = stats.NewCounters()
	}
	if config.Logger == nil {
		config.Logger = logging.NewNoOpLogger()
	}
	if config.Dispatcher == nil {
		config.Dispatcher = SequentialDispatcher{}
	}

	return &Engine{
		enumerator: config.Enumerator,
		transferer: config.Transferer,
		dispatcher: config.Dispatcher,
		excludes:   config.Excludes,
		counters:   config.Counters,
		logger:     config.Logger,
	}
}

// Run mirrors the remote folder to the destination and returns the
// final counters. The returned error is fatal-only: an unreachable
// root or a cancelled context. Per-file failures land in the snapshot's
// error count instead.
func (e *Engine) Run(ctx context.Context, opts Options) (stats.Snapshot, error) {
	if !opts.DryRun {
		if err := os.MkdirAll(opts.Destination, 0755); err != nil {
			return e.counters.Snapshot(), err
		}
	}

	e.logger.Info("Backup starting",
		logging.F("folderId", opts.FolderID),
		logging.F("destination", opts.Destination),
		logging.F("policy", opts.Policy.String()),
		logging.F("includeShared", opts.IncludeShared),
	)

	// The root listing is the one enumeration failure treated as fatal,
	// there is nothing to isolate it from.
	children, err := e.enumerator.ListChildren(ctx, opts.FolderID, "")
	if err != nil {
		return e.counters.Snapshot(), err
	}

	err = e.processChildren(ctx, children, opts)
	snap := e.counters.Snapshot()

	e.logger.Info("Backup finished",
		logging.F("processed", snap.Processed),
		logging.F("skipped", snap.Skipped),
		logging.F("errors", snap.Errors),
		logging.F("bytes", snap.BytesTransferred),
	)
	return snap, err
}

// processFolder lists one folder and handles its contents. Listing
// failures are isolated: siblings of a broken folder still transfer.
func (e *Engine) processFolder(ctx context.Context, folderID, relPath string, opts Options) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	children, err := e.enumerator.ListChildren(ctx, folderID, relPath)
	if err != nil {
		e.logger.Error("Failed to list folder",
			logging.F("folderId", folderID),
			logging.F("path", relPath),
			logging.F("error", err.Error()),
		)
		e.counters.AddErrors(1)
		return nil
	}

	return e.processChildren(ctx, children, opts)
}

func (e *Engine) processChildren(ctx context.Context, children []types.RemoteNode, opts Options) error {
	var jobs []types.TransferJob
	var folders []types.RemoteNode

	for _, child := range children {
		if e.excludes.IsExcluded(child.RelativePath) {
			e.logger.Debug("Excluded", logging.F("path", child.RelativePath))
			e.counters.AddSkipped(1)
			continue
		}

		switch child.Kind {
		case types.ItemKindFolder:
			folders = append(folders, child)
		case types.ItemKindSharedReference:
			if !opts.IncludeShared {
				e.logger.Debug("Skipping shared item", logging.F("path", child.RelativePath))
				e.counters.AddSkipped(1)
				continue
			}
			jobs = append(jobs, e.newJob(child, opts))
		default:
			jobs = append(jobs, e.newJob(child, opts))
		}
	}

	if err := e.dispatcher.Dispatch(ctx, jobs, func(job types.TransferJob) {
		if _, err := e.transferer.Transfer(ctx, job); err != nil {
			e.logger.Error("Transfer failed",
				logging.F("path", job.RelativePath),
				logging.F("error", err.Error()),
			)
		}
	}); err != nil {
		return err
	}

	// Folders recurse one at a time; parallelism lives inside each
	// folder's file batches.
	for _, folder := range folders {
		if !opts.DryRun {
			localDir := filepath.Join(opts.Destination, filepath.FromSlash(folder.RelativePath))
			if err := os.MkdirAll(localDir, 0755); err != nil {
				e.logger.Error("Failed to create directory",
					logging.F("path", localDir),
					logging.F("error", err.Error()),
				)
				e.counters.AddErrors(1)
				continue
			}
		}

		if folder.IsEmpty {
			continue
		}
		if err := e.processFolder(ctx, folder.ID, folder.RelativePath, opts); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) newJob(node types.RemoteNode, opts Options) types.TransferJob {
	return types.TransferJob{
		RemoteID:        node.ID,
		RelativePath:    node.RelativePath,
		DestinationPath: filepath.Join(opts.Destination, filepath.FromSlash(node.RelativePath)),
		ExpectedSize:    node.Size,
		LastModified:    node.LastModified,
		Policy:          opts.Policy,
	}
}
