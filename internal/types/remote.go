package types

import "time"

// ItemKind discriminates the three kinds of entries the drive returns.
type ItemKind string

const (
	ItemKindFile            ItemKind = "file"
	ItemKindFolder          ItemKind = "folder"
	ItemKindSharedReference ItemKind = "sharedReference"
)

// RemoteNode represents one entry returned by the remote drive. It is
// constructed fresh on every enumeration call and never cached; each
// listing is authoritative for that instant.
type RemoteNode struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RelativePath string    `json:"relativePath"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Kind         ItemKind  `json:"kind"`
	IsShared     bool      `json:"isShared,omitempty"`
	IsEmpty      bool      `json:"isEmpty,omitempty"`
}

// OverwritePolicy controls whether an existing destination file is replaced.
type OverwritePolicy int

const (
	// OverwriteNever proceeds only when the destination does not exist.
	OverwriteNever OverwritePolicy = iota
	// OverwriteIfNewer proceeds only when the remote copy is strictly newer
	// than the local file's last-write time.
	OverwriteIfNewer
	// OverwriteAlways always proceeds.
	OverwriteAlways
)

func (p OverwritePolicy) String() string {
	switch p {
	case OverwriteIfNewer:
		return "if-newer"
	case OverwriteAlways:
		return "always"
	default:
		return "never"
	}
}

// TransferJob describes one file download. Created per file by the
// coordinator, consumed and discarded by a transfer worker. Not persisted.
type TransferJob struct {
	RemoteID        string
	RelativePath    string
	DestinationPath string
	ExpectedSize    int64
	LastModified    time.Time
	Policy          OverwritePolicy
}
