package transfer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

// rangeHandler serves blob honoring Range headers and records the
// ranges requested.
type rangeHandler struct {
	blob   []byte
	ranges []string
}

func (h *rangeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rangeHeader := r.Header.Get("Range")
	h.ranges = append(h.ranges, rangeHeader)

	if rangeHeader == "" {
		w.Write(h.blob)
		return
	}

	var start, end int64
	if _, err := fmt.Sscanf(strings.TrimPrefix(rangeHeader, "bytes="), "%d-%d", &start, &end); err != nil {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= int64(len(h.blob)) {
		end = int64(len(h.blob)) - 1
	}

	w.WriteHeader(http.StatusPartialContent)
	w.Write(h.blob[start : end+1])
}

func chunkedJob(dir string, blob []byte) types.TransferJob {
	return types.TransferJob{
		RemoteID:        "big-item",
		RelativePath:    "video.mp4",
		DestinationPath: filepath.Join(dir, "video.mp4"),
		ExpectedSize:    int64(len(blob)),
		LastModified:    time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC),
		Policy:          types.OverwriteNever,
	}
}

func TestChunked_DownloadsInChunks(t *testing.T) {
	blob := []byte("0123456789abcdefghij")
	handler := &rangeHandler{blob: blob}
	worker, _ := newTestWorker(t, handler)
	worker.chunkSize = 8

	dir := t.TempDir()
	job := chunkedJob(dir, blob)

	written, resumed, err := worker.downloadChunkedWithRetry(context.Background(), job)
	if err != nil {
		t.Fatalf("downloadChunkedWithRetry() error = %v", err)
	}
	if resumed {
		t.Error("Fresh download reported as resumed")
	}
	if written != int64(len(blob)) {
		t.Errorf("written = %d, want %d", written, len(blob))
	}

	data, err := os.ReadFile(job.DestinationPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != string(blob) {
		t.Errorf("Content = %q, want %q", data, blob)
	}

	want := []string{"bytes=0-7", "bytes=8-15", "bytes=16-19"}
	if len(handler.ranges) != len(want) {
		t.Fatalf("Ranges = %v, want %v", handler.ranges, want)
	}
	for i, r := range want {
		if handler.ranges[i] != r {
			t.Errorf("Range[%d] = %q, want %q", i, handler.ranges[i], r)
		}
	}

	// Sidecar and partial must be gone after success.
	if _, err := os.Stat(SidecarPath(job.DestinationPath)); !os.IsNotExist(err) {
		t.Error("Checkpoint left behind")
	}
	if _, err := os.Stat(job.DestinationPath + utils.PartialSuffix); !os.IsNotExist(err) {
		t.Error("Partial file left behind")
	}
}

func TestChunked_ResumesFromCheckpoint(t *testing.T) {
	blob := []byte("0123456789abcdefghij")
	handler := &rangeHandler{blob: blob}
	worker, _ := newTestWorker(t, handler)
	worker.chunkSize = 8

	dir := t.TempDir()
	job := chunkedJob(dir, blob)

	// Simulate an interrupted run: first chunk written and checkpointed.
	partial := job.DestinationPath + utils.PartialSuffix
	if err := os.WriteFile(partial, blob[:8], 0644); err != nil {
		t.Fatal(err)
	}
	if err := SaveCheckpoint(job.DestinationPath, &Checkpoint{
		RemoteID:     job.RemoteID,
		BytesWritten: 8,
		TotalSize:    job.ExpectedSize,
	}); err != nil {
		t.Fatal(err)
	}

	written, resumed, err := worker.downloadChunkedWithRetry(context.Background(), job)
	if err != nil {
		t.Fatalf("downloadChunkedWithRetry() error = %v", err)
	}
	if !resumed {
		t.Error("Expected resumed download")
	}
	if written != 12 {
		t.Errorf("written = %d, want 12 bytes fetched after the checkpoint", written)
	}

	data, _ := os.ReadFile(job.DestinationPath)
	if string(data) != string(blob) {
		t.Errorf("Content = %q, want %q", data, blob)
	}

	// First requested range must pick up where the checkpoint left off.
	if len(handler.ranges) == 0 || handler.ranges[0] != "bytes=8-15" {
		t.Errorf("Ranges = %v, want first range bytes=8-15", handler.ranges)
	}
}

func TestTransfer_ResumedDownloadCountsOnlyNewBytes(t *testing.T) {
	blob := []byte("0123456789abcdefghij")
	handler := &rangeHandler{blob: blob}
	worker, counters := newTestWorker(t, handler)
	worker.chunkSize = 8
	worker.largeThreshold = 16

	dir := t.TempDir()
	job := chunkedJob(dir, blob)

	partial := job.DestinationPath + utils.PartialSuffix
	if err := os.WriteFile(partial, blob[:8], 0644); err != nil {
		t.Fatal(err)
	}
	if err := SaveCheckpoint(job.DestinationPath, &Checkpoint{
		RemoteID:     job.RemoteID,
		BytesWritten: 8,
		TotalSize:    job.ExpectedSize,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := worker.Transfer(context.Background(), job)
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if !result.Resumed {
		t.Error("Expected resumed transfer")
	}
	if result.Bytes != 12 {
		t.Errorf("Bytes = %d, want 12", result.Bytes)
	}

	snap := counters.Snapshot()
	if snap.BytesTransferred != 12 {
		t.Errorf("BytesTransferred = %d, want only the bytes fetched this run", snap.BytesTransferred)
	}
	if snap.Processed != 1 {
		t.Errorf("Processed = %d, want 1", snap.Processed)
	}
}

func TestChunked_StaleCheckpointDiscarded(t *testing.T) {
	blob := []byte("0123456789abcdefghij")
	handler := &rangeHandler{blob: blob}
	worker, _ := newTestWorker(t, handler)
	worker.chunkSize = 8

	dir := t.TempDir()
	job := chunkedJob(dir, blob)

	// Checkpoint from a different remote item cannot be trusted.
	partial := job.DestinationPath + utils.PartialSuffix
	if err := os.WriteFile(partial, []byte("garbage!"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := SaveCheckpoint(job.DestinationPath, &Checkpoint{
		RemoteID:     "other-item",
		BytesWritten: 8,
		TotalSize:    job.ExpectedSize,
	}); err != nil {
		t.Fatal(err)
	}

	_, resumed, err := worker.downloadChunkedWithRetry(context.Background(), job)
	if err != nil {
		t.Fatalf("downloadChunkedWithRetry() error = %v", err)
	}
	if resumed {
		t.Error("Stale checkpoint must not resume")
	}
	if handler.ranges[0] != "bytes=0-7" {
		t.Errorf("First range = %q, want bytes=0-7", handler.ranges[0])
	}

	data, _ := os.ReadFile(job.DestinationPath)
	if string(data) != string(blob) {
		t.Errorf("Content = %q, want %q", data, blob)
	}
}

func TestChunked_CheckpointShorterThanPartialTruncates(t *testing.T) {
	blob := []byte("0123456789abcdefghij")
	handler := &rangeHandler{blob: blob}
	worker, _ := newTestWorker(t, handler)
	worker.chunkSize = 8

	dir := t.TempDir()
	job := chunkedJob(dir, blob)

	// Partial holds more bytes than the checkpoint admits; the extra
	// tail is unverified and must be cut back to the checkpoint.
	partial := job.DestinationPath + utils.PartialSuffix
	if err := os.WriteFile(partial, append(append([]byte{}, blob[:8]...), []byte("junk")...), 0644); err != nil {
		t.Fatal(err)
	}
	if err := SaveCheckpoint(job.DestinationPath, &Checkpoint{
		RemoteID:     job.RemoteID,
		BytesWritten: 8,
		TotalSize:    job.ExpectedSize,
	}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := worker.downloadChunkedWithRetry(context.Background(), job); err != nil {
		t.Fatalf("downloadChunkedWithRetry() error = %v", err)
	}

	data, _ := os.ReadFile(job.DestinationPath)
	if string(data) != string(blob) {
		t.Errorf("Content = %q, want %q", data, blob)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")

	cp := &Checkpoint{RemoteID: "r1", BytesWritten: 1024, TotalSize: 4096}
	if err := SaveCheckpoint(dest, cp); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	loaded := LoadCheckpoint(dest)
	if loaded == nil {
		t.Fatal("LoadCheckpoint() = nil")
	}
	if loaded.RemoteID != "r1" || loaded.BytesWritten != 1024 || loaded.TotalSize != 4096 {
		t.Errorf("Loaded = %+v", loaded)
	}
	if loaded.LastUpdatedUTC.IsZero() {
		t.Error("LastUpdatedUTC not set")
	}

	RemoveCheckpoint(dest)
	if LoadCheckpoint(dest) != nil {
		t.Error("Checkpoint survived removal")
	}
}

func TestLoadCheckpoint_CorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")

	if err := os.WriteFile(SidecarPath(dest), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if LoadCheckpoint(dest) != nil {
		t.Error("Corrupt checkpoint should load as nil")
	}
}

func TestCheckpointMatches(t *testing.T) {
	cp := &Checkpoint{RemoteID: "r1", BytesWritten: 10, TotalSize: 100}

	if !cp.Matches("r1", 100) {
		t.Error("Expected match")
	}
	if cp.Matches("r2", 100) {
		t.Error("Different remote ID must not match")
	}
	if cp.Matches("r1", 200) {
		t.Error("Different size must not match")
	}

	var nilCP *Checkpoint
	if nilCP.Matches("r1", 100) {
		t.Error("Nil checkpoint must not match")
	}
}
