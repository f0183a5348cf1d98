package verify

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/onemirror/onemirror/internal/backup/exclude"
	"github.com/onemirror/onemirror/internal/backup/scanner"
	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
)

// DiffKind classifies a verification discrepancy.
type DiffKind string

const (
	DiffMissing      DiffKind = "missing"       // remote file absent locally
	DiffSizeMismatch DiffKind = "size-mismatch" // sizes differ
	DiffExtra        DiffKind = "extra"         // local file with no remote counterpart
)

// DiffEntry is one discrepancy between the drive and the local mirror.
// SizeDelta is local minus remote, so a truncated download is negative.
type DiffEntry struct {
	RelativePath string   `json:"relativePath"`
	Kind         DiffKind `json:"kind"`
	RemoteSize   int64    `json:"remoteSize"`
	LocalSize    int64    `json:"localSize"`
	SizeDelta    int64    `json:"sizeDelta,omitempty"`
}

// Result summarizes a verification run. Comparison is size-only; the
// drive does not expose content hashes for everything, and sizes catch
// truncated or missed transfers.
type Result struct {
	RemoteFiles   int         `json:"remoteFiles"`
	LocalFiles    int         `json:"localFiles"`
	Matched       int         `json:"matched"`
	ListingErrors int         `json:"listingErrors"`
	Diffs         []DiffEntry `json:"diffs"`
}

// Clean reports whether the mirror matches the drive.
func (r *Result) Clean() bool {
	return len(r.Diffs) == 0
}

// RemoteLister enumerates the full remote subtree, pruning excluded
// folders and isolating per-folder listing failures.
type RemoteLister interface {
	ListTree(ctx context.Context, folderID, rootPath string, opts scanner.TreeOptions) (map[string]types.RemoteNode, int, error)
}

// LocalWalker collects local files under the mirror root.
type LocalWalker interface {
	Walk(root string) (map[string]scanner.LocalEntry, error)
}

// Options describes one verification run.
type Options struct {
	FolderID      string
	Destination   string
	IncludeShared bool
}

// Engine compares a remote folder tree against its local mirror.
type Engine struct {
	remote   RemoteLister
	local    LocalWalker
	excludes *exclude.Set
	logger   logging.Logger
}

// New creates a verification engine.
func New(remote RemoteLister, local LocalWalker, excludes *exclude.Set, logger logging.Logger) *Engine {
	if excludes == nil {
		excludes = exclude.New()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Engine{
		remote:   remote,
		local:    local,
		excludes: excludes,
		logger:   logger,
	}
}

// Verify lists both sides and reports every discrepancy, sorted by
// relative path. Excluded paths are invisible on both sides: the
// remote lister prunes them before enumeration, the local walk is
// filtered here. Unreadable subfolders surface as ListingErrors, not
// as a failed run.
func (e *Engine) Verify(ctx context.Context, opts Options) (*Result, error) {
	remoteFiles, listingErrors, err := e.remote.ListTree(ctx, opts.FolderID, "", scanner.TreeOptions{
		IncludeShared: opts.IncludeShared,
		Excludes:      e.excludes,
	})
	if err != nil {
		return nil, err
	}

	localFiles, err := e.local.Walk(opts.Destination)
	if err != nil {
		return nil, err
	}

	result := &Result{ListingErrors: listingErrors}

	for path, node := range remoteFiles {
		result.RemoteFiles++

		local, ok := localFiles[path]
		if !ok {
			result.Diffs = append(result.Diffs, DiffEntry{
				RelativePath: path,
				Kind:         DiffMissing,
				RemoteSize:   node.Size,
			})
			continue
		}
		if local.Size != node.Size {
			result.Diffs = append(result.Diffs, DiffEntry{
				RelativePath: path,
				Kind:         DiffSizeMismatch,
				RemoteSize:   node.Size,
				LocalSize:    local.Size,
				SizeDelta:    local.Size - node.Size,
			})
			continue
		}
		result.Matched++
	}

	for path, local := range localFiles {
		if e.excludes.IsExcluded(path) {
			continue
		}
		result.LocalFiles++

		if _, ok := remoteFiles[path]; !ok {
			result.Diffs = append(result.Diffs, DiffEntry{
				RelativePath: path,
				Kind:         DiffExtra,
				LocalSize:    local.Size,
			})
		}
	}

	sort.Slice(result.Diffs, func(i, j int) bool {
		return result.Diffs[i].RelativePath < result.Diffs[j].RelativePath
	})

	e.logger.Info("Verification finished",
		logging.F("remoteFiles", result.RemoteFiles),
		logging.F("localFiles", result.LocalFiles),
		logging.F("matched", result.Matched),
		logging.F("diffs", len(result.Diffs)),
		logging.F("listingErrors", result.ListingErrors),
	)
	return result, nil
}

// AsTableRenderer implements types.TableRenderable.
func (r *Result) AsTableRenderer() types.TableRenderer {
	return &resultTable{result: r}
}

type resultTable struct {
	result *Result
}

func (t *resultTable) Headers() []string {
	return []string{"Path", "Status", "Remote Size", "Local Size"}
}

func (t *resultTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.result.Diffs))
	for _, diff := range t.result.Diffs {
		rows = append(rows, []string{
			diff.RelativePath,
			string(diff.Kind),
			sizeCell(diff.Kind != DiffExtra, diff.RemoteSize),
			sizeCell(diff.Kind != DiffMissing, diff.LocalSize),
		})
	}
	return rows
}

func (t *resultTable) EmptyMessage() string {
	return fmt.Sprintf("All %d files match", t.result.Matched)
}

func sizeCell(present bool, size int64) string {
	if !present {
		return "-"
	}
	return humanize.Bytes(uint64(size))
}
