package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/onemirror/onemirror/internal/backup/exclude"
	"github.com/onemirror/onemirror/internal/backup/stats"
	"github.com/onemirror/onemirror/internal/backup/transfer"
	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
)

// fakeEnumerator serves a canned tree keyed by folder ID.
type fakeEnumerator struct {
	mu       sync.Mutex
	tree     map[string][]types.RemoteNode
	failures map[string]error
	listed   []string
}

func (f *fakeEnumerator) ListChildren(ctx context.Context, folderID, parentPath string) ([]types.RemoteNode, error) {
	f.mu.Lock()
	f.listed = append(f.listed, folderID)
	f.mu.Unlock()

	if err, ok := f.failures[folderID]; ok {
		return nil, err
	}
	return f.tree[folderID], nil
}

// fakeTransferer records jobs without touching the network.
type fakeTransferer struct {
	mu   sync.Mutex
	jobs []types.TransferJob
	errs map[string]error
}

func (f *fakeTransferer) Transfer(ctx context.Context, job types.TransferJob) (transfer.Result, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	if err, ok := f.errs[job.RelativePath]; ok {
		return transfer.Result{Job: job}, err
	}
	return transfer.Result{Job: job, Outcome: transfer.OutcomeDownloaded}, nil
}

func (f *fakeTransferer) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, job := range f.jobs {
		out = append(out, job.RelativePath)
	}
	return out
}

func file(id, relPath string, size int64) types.RemoteNode {
	return types.RemoteNode{
		ID:           id,
		Name:         filepath.Base(relPath),
		RelativePath: relPath,
		Size:         size,
		LastModified: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Kind:         types.ItemKindFile,
	}
}

func folder(id, relPath string, empty bool) types.RemoteNode {
	return types.RemoteNode{
		ID:           id,
		Name:         filepath.Base(relPath),
		RelativePath: relPath,
		Kind:         types.ItemKindFolder,
		IsEmpty:      empty,
	}
}

func sharedRef(id, relPath string, size int64) types.RemoteNode {
	return types.RemoteNode{
		ID:           id,
		Name:         filepath.Base(relPath),
		RelativePath: relPath,
		Size:         size,
		Kind:         types.ItemKindSharedReference,
		IsShared:     true,
	}
}

func newTestEngine(enum *fakeEnumerator, trans *fakeTransferer, excludes *exclude.Set) (*Engine, *stats.Counters) {
	counters := stats.NewCounters()
	engine := New(Config{
		Enumerator: enum,
		Transferer: trans,
		Dispatcher: SequentialDispatcher{},
		Excludes:   excludes,
		Counters:   counters,
		Logger:     logging.NewNoOpLogger(),
	})
	return engine, counters
}

func TestRun_MirrorsTree(t *testing.T) {
	enum := &fakeEnumerator{tree: map[string][]types.RemoteNode{
		"root-id": {
			file("f1", "readme.md", 10),
			folder("d1", "Docs", false),
			folder("d2", "EmptyDir", true),
		},
		"d1": {
			file("f2", "Docs/plan.txt", 20),
		},
	}}
	trans := &fakeTransferer{}
	engine, _ := newTestEngine(enum, trans, nil)
	dest := t.TempDir()

	snap, err := engine.Run(context.Background(), Options{
		FolderID:    "root-id",
		Destination: dest,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	paths := trans.paths()
	if len(paths) != 2 {
		t.Fatalf("Transferred %v, want 2 files", paths)
	}

	// Empty folders are still created locally.
	if info, err := os.Stat(filepath.Join(dest, "EmptyDir")); err != nil || !info.IsDir() {
		t.Errorf("EmptyDir not created: %v", err)
	}
	if info, err := os.Stat(filepath.Join(dest, "Docs")); err != nil || !info.IsDir() {
		t.Errorf("Docs not created: %v", err)
	}

	if snap.Errors != 0 {
		t.Errorf("Errors = %d, want 0", snap.Errors)
	}
}

func TestRun_DestinationPaths(t *testing.T) {
	enum := &fakeEnumerator{tree: map[string][]types.RemoteNode{
		"root-id": {folder("d1", "A", false)},
		"d1":      {file("f1", "A/deep.txt", 5)},
	}}
	trans := &fakeTransferer{}
	engine, _ := newTestEngine(enum, trans, nil)
	dest := t.TempDir()

	if _, err := engine.Run(context.Background(), Options{FolderID: "root-id", Destination: dest}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := filepath.Join(dest, "A", "deep.txt")
	if trans.jobs[0].DestinationPath != want {
		t.Errorf("DestinationPath = %q, want %q", trans.jobs[0].DestinationPath, want)
	}
}

func TestRun_ExclusionSkipsSubtree(t *testing.T) {
	enum := &fakeEnumerator{tree: map[string][]types.RemoteNode{
		"root-id": {
			file("f1", "keep.txt", 1),
			file("f2", "Archive/old.txt", 1),
			folder("d1", "Archive", false),
		},
		"d1": {file("f3", "Archive/never.txt", 1)},
	}}
	trans := &fakeTransferer{}
	engine, counters := newTestEngine(enum, trans, exclude.New("Archive"))
	dest := t.TempDir()

	if _, err := engine.Run(context.Background(), Options{FolderID: "root-id", Destination: dest}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	paths := trans.paths()
	if len(paths) != 1 || paths[0] != "keep.txt" {
		t.Errorf("Transferred %v, want only keep.txt", paths)
	}

	// The excluded folder must never be enumerated.
	for _, id := range enum.listed {
		if id == "d1" {
			t.Error("Excluded folder was listed")
		}
	}
	if counters.Snapshot().Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", counters.Snapshot().Skipped)
	}
}

func TestRun_SharedItemsSkippedByDefault(t *testing.T) {
	enum := &fakeEnumerator{tree: map[string][]types.RemoteNode{
		"root-id": {
			file("f1", "own.txt", 1),
			sharedRef("s1", "TeamDoc.docx", 50),
		},
	}}
	trans := &fakeTransferer{}
	engine, counters := newTestEngine(enum, trans, nil)

	if _, err := engine.Run(context.Background(), Options{FolderID: "root-id", Destination: t.TempDir()}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	paths := trans.paths()
	if len(paths) != 1 || paths[0] != "own.txt" {
		t.Errorf("Transferred %v, want only own.txt", paths)
	}
	if counters.Snapshot().Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", counters.Snapshot().Skipped)
	}
}

func TestRun_SharedItemsIncludedWhenAsked(t *testing.T) {
	enum := &fakeEnumerator{tree: map[string][]types.RemoteNode{
		"root-id": {sharedRef("s1", "TeamDoc.docx", 50)},
	}}
	trans := &fakeTransferer{}
	engine, _ := newTestEngine(enum, trans, nil)

	if _, err := engine.Run(context.Background(), Options{
		FolderID:      "root-id",
		Destination:   t.TempDir(),
		IncludeShared: true,
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(trans.jobs) != 1 || trans.jobs[0].RemoteID != "s1" {
		t.Errorf("Jobs = %+v, want shared item transferred", trans.jobs)
	}
}

func TestRun_FolderFailureIsolated(t *testing.T) {
	enum := &fakeEnumerator{
		tree: map[string][]types.RemoteNode{
			"root-id": {
				folder("bad", "Broken", false),
				folder("good", "Fine", false),
			},
			"good": {file("f1", "Fine/ok.txt", 1)},
		},
		failures: map[string]error{"bad": errors.New("listing failed")},
	}
	trans := &fakeTransferer{}
	engine, counters := newTestEngine(enum, trans, nil)

	snap, err := engine.Run(context.Background(), Options{FolderID: "root-id", Destination: t.TempDir()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	paths := trans.paths()
	if len(paths) != 1 || paths[0] != "Fine/ok.txt" {
		t.Errorf("Transferred %v, want Fine/ok.txt despite sibling failure", paths)
	}
	if snap.Errors != 1 {
		t.Errorf("Errors = %d, want 1", snap.Errors)
	}
	_ = counters
}

func TestRun_RootFailureIsFatal(t *testing.T) {
	enum := &fakeEnumerator{
		failures: map[string]error{"root-id": errors.New("root unreachable")},
	}
	engine, _ := newTestEngine(enum, &fakeTransferer{}, nil)

	_, err := engine.Run(context.Background(), Options{FolderID: "root-id", Destination: t.TempDir()})
	if err == nil {
		t.Error("Expected fatal error for unreachable root")
	}
}

func TestRun_Cancellation(t *testing.T) {
	enum := &fakeEnumerator{tree: map[string][]types.RemoteNode{
		"root-id": {folder("d1", "Sub", false)},
		"d1":      {file("f1", "Sub/one.txt", 1)},
	}}
	trans := &fakeTransferer{}
	engine, _ := newTestEngine(enum, trans, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, Options{FolderID: "root-id", Destination: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_DryRunCreatesNoDirectories(t *testing.T) {
	enum := &fakeEnumerator{tree: map[string][]types.RemoteNode{
		"root-id": {
			file("f1", "readme.md", 10),
			folder("d1", "Docs", false),
		},
		"d1": {
			file("f2", "Docs/plan.txt", 20),
		},
	}}
	trans := &fakeTransferer{}
	engine, _ := newTestEngine(enum, trans, nil)
	dest := filepath.Join(t.TempDir(), "mirror")

	_, err := engine.Run(context.Background(), Options{
		FolderID:    "root-id",
		Destination: dest,
		DryRun:      true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("dry run should not create the destination directory")
	}
	// Jobs still flow so the worker can report what it would do.
	if len(trans.paths()) != 2 {
		t.Errorf("expected 2 jobs in dry run, got %v", trans.paths())
	}
}
