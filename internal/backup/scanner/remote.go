package scanner

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/onemirror/onemirror/internal/api"
	"github.com/onemirror/onemirror/internal/backup/exclude"
	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

// driveItem is the subset of the Graph driveItem resource the backup
// needs. Facet presence, not a type field, tells items apart.
type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	File                 *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	Folder *struct {
		ChildCount int64 `json:"childCount"`
	} `json:"folder"`
	RemoteItem *struct {
		ID string `json:"id"`
	} `json:"remoteItem"`
	Shared *struct {
		Scope string `json:"scope"`
	} `json:"shared"`
}

// childrenPage is one page of a children listing.
type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// Remote lists drive folders through the Graph API. Listings are never
// cached; every call reflects the drive at that moment.
type Remote struct {
	client  *api.Client
	profile string
	logger  logging.Logger
}

// NewRemote creates a remote scanner.
func NewRemote(client *api.Client, profile string, logger logging.Logger) *Remote {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Remote{
		client:  client,
		profile: profile,
		logger:  logger,
	}
}

// ListChildren returns the immediate children of a folder, following
// paging links until the listing is complete. parentPath is the
// drive-relative path of the folder and seeds each child's path.
func (r *Remote) ListChildren(ctx context.Context, folderID, parentPath string) ([]types.RemoteNode, error) {
	reqCtx := api.NewRequestContext(r.profile, types.RequestTypeListOrSearch)
	r.client.WithItemIDs(reqCtx, folderID)

	url := childrenURL(folderID)
	var nodes []types.RemoteNode

	for url != "" {
		pageURL := url
		page, err := api.ExecuteWithRetry(ctx, r.client, reqCtx, func() (childrenPage, error) {
			var page childrenPage
			err := r.client.GetJSON(ctx, reqCtx, pageURL, &page)
			return page, err
		})
		if err != nil {
			return nil, err
		}

		for _, item := range page.Value {
			nodes = append(nodes, classifyItem(item, parentPath))
		}
		url = page.NextLink
	}

	r.logger.Debug("Listed folder",
		logging.F("folderId", folderID),
		logging.F("path", parentPath),
		logging.F("children", len(nodes)),
	)
	return nodes, nil
}

// TreeOptions controls a full-subtree listing.
type TreeOptions struct {
	IncludeShared bool
	Excludes      *exclude.Set
}

// ListTree walks the whole subtree under folderID breadth-first and
// returns every file keyed by drive-relative path, plus the number of
// subfolders whose listing failed. Excluded folders are pruned before
// their children are ever requested. Only a root listing failure or a
// cancelled context is fatal; deeper listing failures are logged,
// counted, and skipped so the rest of the tree still gets indexed.
func (r *Remote) ListTree(ctx context.Context, folderID, rootPath string, opts TreeOptions) (map[string]types.RemoteNode, int, error) {
	excludes := opts.Excludes
	if excludes == nil {
		excludes = exclude.New()
	}

	files := make(map[string]types.RemoteNode)
	failures := 0

	type folder struct {
		id   string
		path string
	}
	queue := []folder{{id: folderID, path: rootPath}}
	atRoot := true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := r.ListChildren(ctx, current.id, current.path)
		if err != nil {
			if atRoot || ctx.Err() != nil {
				return nil, failures, err
			}
			r.logger.Error("Failed to list folder",
				logging.F("folderId", current.id),
				logging.F("path", current.path),
				logging.F("error", err.Error()),
			)
			failures++
			continue
		}
		atRoot = false

		for _, child := range children {
			if excludes.IsExcluded(child.RelativePath) {
				continue
			}
			switch child.Kind {
			case types.ItemKindFolder:
				queue = append(queue, folder{id: child.ID, path: child.RelativePath})
			case types.ItemKindSharedReference:
				if opts.IncludeShared {
					files[child.RelativePath] = child
				}
			default:
				files[child.RelativePath] = child
			}
		}
	}

	return files, failures, nil
}

func childrenURL(folderID string) string {
	if folderID == utils.RootFolderID || folderID == "" {
		return "/me/drive/root/children"
	}
	return fmt.Sprintf("/me/drive/items/%s/children", folderID)
}

// classifyItem maps a Graph driveItem onto a RemoteNode. A remoteItem
// facet marks an item shared in from another drive; those take their
// size and timestamp at face value but carry the reference's own ID.
func classifyItem(item driveItem, parentPath string) types.RemoteNode {
	node := types.RemoteNode{
		ID:           item.ID,
		Name:         item.Name,
		RelativePath: path.Join(parentPath, item.Name),
		Size:         item.Size,
		LastModified: item.LastModifiedDateTime,
		IsShared:     item.Shared != nil,
	}

	switch {
	case item.RemoteItem != nil:
		node.Kind = types.ItemKindSharedReference
		node.IsShared = true
	case item.Folder != nil:
		node.Kind = types.ItemKindFolder
		node.IsEmpty = item.Folder.ChildCount == 0
	default:
		node.Kind = types.ItemKindFile
	}

	return node
}
