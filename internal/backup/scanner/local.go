package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/utils"
)

// LocalEntry describes one file found under the backup destination.
type LocalEntry struct {
	RelativePath string
	Size         int64
	ModTime      time.Time
}

// Local walks a destination directory collecting regular files for
// verification. Symlinks and transfer leftovers are skipped.
type Local struct {
	logger logging.Logger
}

// NewLocal creates a local scanner.
func NewLocal(logger logging.Logger) *Local {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Local{logger: logger}
}

// Walk returns every regular file under root keyed by slash-separated
// relative path.
func (l *Local) Walk(root string) (map[string]LocalEntry, error) {
	entries := make(map[string]LocalEntry)

	err := filepath.WalkDir(root, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && fullPath == root {
				return err
			}
			l.logger.Warn("Skipping unreadable path",
				logging.F("path", fullPath),
				logging.F("error", err.Error()),
			)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if isTransferArtifact(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			l.logger.Warn("Skipping unstatable file",
				logging.F("path", fullPath),
				logging.F("error", err.Error()),
			)
			return nil
		}

		rel, err := filepath.Rel(root, fullPath)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		entries[rel] = LocalEntry{
			RelativePath: rel,
			Size:         info.Size(),
			ModTime:      info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// isTransferArtifact reports whether a file is a partial download or a
// checkpoint sidecar rather than real backup content.
func isTransferArtifact(name string) bool {
	return strings.HasSuffix(name, utils.PartialSuffix) || strings.HasSuffix(name, utils.CheckpointSuffix)
}
