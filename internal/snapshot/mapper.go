package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hemanttanawade-debug/drive-migration/internal/logging"
	"github.com/hemanttanawade-debug/drive-migration/internal/remote"
)

// Mapper captures hierarchy snapshots from a remote tenant.
type Mapper struct {
	svc    remote.Service
	policy remote.RetryPolicy
	log    *slog.Logger
}

// NewMapper builds a Mapper over the given tenant service.
func NewMapper(svc remote.Service, policy remote.RetryPolicy) *Mapper {
	return &Mapper{
		svc:    svc,
		policy: policy,
		log:    logging.Component("snapshot"),
	}
}

// Capture walks everything the principal owns and returns an immutable
// snapshot. The listing is paginated until the continuation token chain
// is exhausted; each listed object gets a detail and an ACL fetch.
func (m *Mapper) Capture(ctx context.Context, principal string) (*Snapshot, error) {
	var listed []remote.Object
	token := ""
	for {
		var page remote.Page
		err := remote.Call(ctx, m.policy, "ListOwned", func() error {
			var callErr error
			page, callErr = m.svc.ListOwned(ctx, principal, token)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("list objects for %s: %w", principal, err)
		}
		listed = append(listed, page.Objects...)
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	nodes := make(map[string]Node, len(listed))
	for _, obj := range listed {
		var detail remote.Object
		err := remote.Call(ctx, m.policy, "GetDetails", func() error {
			var callErr error
			detail, callErr = m.svc.GetDetails(ctx, obj.ID)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("get details %s: %w", obj.ID, err)
		}

		node := Node{
			ID:       detail.ID,
			Name:     detail.Name,
			MIMEType: detail.MIMEType,
			Size:     detail.Size,
			Owners:   detail.Owners,
		}
		if len(detail.ParentIDs) > 0 {
			node.ParentID = detail.ParentIDs[0]
		}

		err = remote.Call(ctx, m.policy, "GetAccessEntries", func() error {
			var callErr error
			node.Entries, callErr = m.svc.GetAccessEntries(ctx, obj.ID)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("get access entries %s: %w", obj.ID, err)
		}
		nodes[node.ID] = node
	}

	snap := &Snapshot{
		Principal:  principal,
		CapturedAt: time.Now().UTC(),
		Summary:    Summary{GrantsByRole: make(map[string]int)},
	}

	for id, node := range nodes {
		// Parents outside the principal's ownership attach to the
		// synthetic root.
		if node.ParentID != "" {
			if _, owned := nodes[node.ParentID]; !owned {
				node.ParentID = ""
				nodes[id] = node
			}
		}
	}

	paths := make(map[string]string, len(nodes))
	for id, node := range nodes {
		if node.MIMEType != remote.MIMEFolder {
			continue
		}
		node.Path = folderPath(id, nodes, paths)
		snap.Folders = append(snap.Folders, node)
	}
	for _, node := range nodes {
		if node.MIMEType == remote.MIMEFolder {
			continue
		}
		snap.Objects = append(snap.Objects, node)
	}

	sort.Slice(snap.Folders, func(i, j int) bool {
		if d1, d2 := snap.Folders[i].Depth(), snap.Folders[j].Depth(); d1 != d2 {
			return d1 < d2
		}
		return snap.Folders[i].Path < snap.Folders[j].Path
	})
	sort.Slice(snap.Objects, func(i, j int) bool {
		return snap.Objects[i].ID < snap.Objects[j].ID
	})

	snap.Summary.FolderCount = len(snap.Folders)
	snap.Summary.ObjectCount = len(snap.Objects)
	for _, node := range nodes {
		snap.Summary.TotalBytes += node.Size
		for _, e := range node.Entries {
			snap.Summary.GrantsByRole[e.Role]++
		}
	}

	m.log.Info("snapshot captured",
		"principal", principal,
		"folders", snap.Summary.FolderCount,
		"objects", snap.Summary.ObjectCount,
		"bytes", snap.Summary.TotalBytes)
	return snap, nil
}

// folderPath reconstructs a folder's path by following parent pointers
// to the root, memoizing along the way.
func folderPath(id string, nodes map[string]Node, memo map[string]string) string {
	if p, ok := memo[id]; ok {
		return p
	}
	node, ok := nodes[id]
	if !ok {
		return ""
	}

	seen := map[string]bool{id: true}
	segments := []string{node.Name}
	cur := node.ParentID
	for cur != "" {
		parent, ok := nodes[cur]
		if !ok || seen[cur] {
			break
		}
		seen[cur] = true
		segments = append([]string{parent.Name}, segments...)
		cur = parent.ParentID
	}

	path := ""
	for _, seg := range segments {
		path += "/" + seg
	}
	memo[id] = path
	return path
}
