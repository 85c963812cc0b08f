// Package snapshot captures and persists per-principal hierarchy
// snapshots. A snapshot is immutable once captured; the validator
// compares a source capture against a destination capture taken after
// transfer.
package snapshot

import (
	"strings"
	"time"

	"github.com/hemanttanawade-debug/drive-migration/internal/access"
)

// Node is one object or folder in a captured hierarchy.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
	// ParentID is the containing folder, "" for the synthetic root.
	// Multi-parent objects collapse to their first listed parent.
	ParentID string         `json:"parent_id,omitempty"`
	Path     string         `json:"path,omitempty"`
	Owners   []string       `json:"owners,omitempty"`
	Entries  []access.Entry `json:"entries,omitempty"`
}

// Depth is the folder nesting level derived from the path; root
// children are depth 1.
func (n Node) Depth() int {
	if n.Path == "" {
		return 0
	}
	return strings.Count(n.Path, "/")
}

// Summary aggregates a capture for reporting and validation.
type Summary struct {
	FolderCount  int            `json:"folder_count"`
	ObjectCount  int            `json:"object_count"`
	TotalBytes   int64          `json:"total_bytes"`
	GrantsByRole map[string]int `json:"grants_by_role,omitempty"`
}

// Snapshot is a point-in-time capture of everything one principal owns.
type Snapshot struct {
	Principal  string    `json:"principal"`
	CapturedAt time.Time `json:"captured_at"`
	Folders    []Node    `json:"folders"`
	Objects    []Node    `json:"objects"`
	Summary    Summary   `json:"summary"`
}
