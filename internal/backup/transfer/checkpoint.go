package transfer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/onemirror/onemirror/internal/utils"
)

// Checkpoint records resumable progress for a chunked download. It
// lives in a sidecar file next to the destination and is deleted the
// moment the download completes.
type Checkpoint struct {
	RemoteID       string    `json:"remoteId"`
	BytesWritten   int64     `json:"bytesWritten"`
	TotalSize      int64     `json:"totalSize"`
	LastUpdatedUTC time.Time `json:"lastUpdatedUtc"`
}

// SidecarPath returns the checkpoint file path for a destination.
func SidecarPath(destination string) string {
	return destination + utils.CheckpointSuffix
}

// LoadCheckpoint reads the checkpoint for a destination. A missing or
// unparsable sidecar yields nil; a stale or corrupt checkpoint is no
// worse than starting over.
func LoadCheckpoint(destination string) *Checkpoint {
	data, err := os.ReadFile(SidecarPath(destination))
	if err != nil {
		return nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	if cp.RemoteID == "" || cp.BytesWritten < 0 || cp.TotalSize <= 0 {
		return nil
	}
	return &cp
}

// SaveCheckpoint atomically writes the checkpoint sidecar. The write
// goes to a temp file first so a crash never leaves a torn sidecar.
func SaveCheckpoint(destination string, cp *Checkpoint) error {
	cp.LastUpdatedUTC = time.Now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	sidecar := SidecarPath(destination)
	tmp := sidecar + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, sidecar); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// RemoveCheckpoint deletes the sidecar if present.
func RemoveCheckpoint(destination string) {
	os.Remove(SidecarPath(destination))
}

// Matches reports whether the checkpoint belongs to the given remote
// item and expected size. Anything else means the remote file changed
// and the partial content cannot be trusted.
func (cp *Checkpoint) Matches(remoteID string, totalSize int64) bool {
	return cp != nil && cp.RemoteID == remoteID && cp.TotalSize == totalSize
}
