// Package validator reconciles a source snapshot against a destination
// snapshot taken after transfer. It is a pure comparison; nothing here
// talks to a remote tenant.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hemanttanawade-debug/drive-migration/internal/access"
	"github.com/hemanttanawade-debug/drive-migration/internal/remote"
	"github.com/hemanttanawade-debug/drive-migration/internal/snapshot"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Overall report statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Issue is one discrepancy found during reconciliation.
type Issue struct {
	Severity string `json:"severity"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// ObjectResult is the reconciliation outcome for one source object,
// keyed by display name.
type ObjectResult struct {
	Name             string  `json:"name"`
	Found            bool    `json:"found"`
	TypeMatch        bool    `json:"type_match"`
	AccessCountMatch bool    `json:"access_count_match"`
	Issues           []Issue `json:"issues,omitempty"`
}

// Report is the full reconciliation outcome for one principal.
// ValidatedAt is stamped when the report is persisted; Validate itself
// depends on nothing but its two inputs.
type Report struct {
	Principal   string         `json:"principal"`
	ValidatedAt time.Time      `json:"validated_at"`
	Status      string         `json:"status"`
	Objects     []ObjectResult `json:"objects"`
	Folders     []ObjectResult `json:"folders"`
	Issues      []Issue        `json:"issues,omitempty"`
	Matched     int            `json:"matched"`
	Missing     int            `json:"missing"`
}

// Validate compares the two captures name by name. Destination lookups
// also try the exported-format name, since native documents may land
// renamed with an office extension.
func Validate(source, dest *snapshot.Snapshot) *Report {
	r := &Report{Principal: source.Principal}

	destObjects := indexByName(dest.Objects)
	destFolders := indexByName(dest.Folders)

	flagDuplicates(r, source.Objects, "object")
	flagDuplicates(r, source.Folders, "folder")

	for _, src := range source.Objects {
		// Shortcuts are skipped during transfer, so their absence in the
		// destination is expected.
		if src.MIMEType == remote.MIMEShortcut {
			continue
		}
		res := ObjectResult{Name: src.Name}
		match, ok := lookupDest(src, destObjects)
		if !ok {
			res.Issues = append(res.Issues, Issue{
				Severity: SeverityError,
				Category: "missing",
				Message:  fmt.Sprintf("%q not found in destination", src.Name),
			})
			r.Objects = append(r.Objects, res)
			r.Missing++
			continue
		}

		res.Found = true
		res.TypeMatch = typeMatches(src.MIMEType, match.MIMEType)
		if !res.TypeMatch {
			res.Issues = append(res.Issues, Issue{
				Severity: SeverityWarning,
				Category: "type_mismatch",
				Message:  fmt.Sprintf("%q is %s in source but %s in destination", src.Name, src.MIMEType, match.MIMEType),
			})
		}

		srcGrants := access.CountNonOwner(src.Entries)
		destGrants := access.CountNonOwner(match.Entries)
		res.AccessCountMatch = srcGrants == destGrants
		if !res.AccessCountMatch {
			res.Issues = append(res.Issues, Issue{
				Severity: SeverityWarning,
				Category: "access_count_mismatch",
				Message:  fmt.Sprintf("%q has %d non-owner grants in source, %d in destination", src.Name, srcGrants, destGrants),
			})
		}

		r.Objects = append(r.Objects, res)
		r.Matched++
	}

	for _, src := range source.Folders {
		res := ObjectResult{Name: src.Name}
		if _, ok := destFolders[src.Name]; !ok {
			res.Issues = append(res.Issues, Issue{
				Severity: SeverityError,
				Category: "missing",
				Message:  fmt.Sprintf("folder %q not found in destination", src.Name),
			})
			r.Missing++
		} else {
			res.Found = true
			res.TypeMatch = true
			res.AccessCountMatch = true
			r.Matched++
		}
		r.Folders = append(r.Folders, res)
	}

	r.Status = overallStatus(r)
	return r
}

func indexByName(nodes []snapshot.Node) map[string]snapshot.Node {
	idx := make(map[string]snapshot.Node, len(nodes))
	for _, n := range nodes {
		// First occurrence wins; duplicates are reported separately.
		if _, exists := idx[n.Name]; !exists {
			idx[n.Name] = n
		}
	}
	return idx
}

func flagDuplicates(r *Report, nodes []snapshot.Node, kind string) {
	counts := make(map[string]int, len(nodes))
	for _, n := range nodes {
		counts[n.Name]++
	}
	names := make([]string, 0, len(counts))
	for name, n := range counts {
		if n > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		r.Issues = append(r.Issues, Issue{
			Severity: SeverityWarning,
			Category: "duplicate_name",
			Message:  fmt.Sprintf("source %s name %q appears %d times; name-keyed matching may misreport it", kind, name, counts[name]),
		})
	}
}

// lookupDest finds the destination counterpart of a source object. An
// exported native document lands under its name plus the export
// extension, so that spelling is tried second.
func lookupDest(src snapshot.Node, dest map[string]snapshot.Node) (snapshot.Node, bool) {
	if match, ok := dest[src.Name]; ok {
		return match, true
	}
	if target, ok := remote.ExportTargetFor(src.MIMEType); ok {
		if match, ok := dest[src.Name+target.Extension]; ok {
			return match, true
		}
	}
	return snapshot.Node{}, false
}

// typeMatches accepts an exact MIME match or the fixed native-to-office
// conversion for exported documents.
func typeMatches(srcMIME, destMIME string) bool {
	if srcMIME == destMIME {
		return true
	}
	if target, ok := remote.ExportTargetFor(srcMIME); ok {
		return destMIME == target.MIME
	}
	return false
}

func overallStatus(r *Report) string {
	if r.Matched == 0 && r.Missing > 0 {
		return StatusFailed
	}
	if r.Missing > 0 {
		return StatusPartial
	}
	for _, res := range r.Objects {
		if len(res.Issues) > 0 {
			return StatusPartial
		}
	}
	if len(r.Issues) > 0 {
		return StatusPartial
	}
	return StatusSuccess
}

// RenderText formats the report for humans, one line per discrepancy.
func (r *Report) RenderText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Validation report for %s\n", r.Principal)
	fmt.Fprintf(&b, "Generated: %s\n", r.ValidatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	fmt.Fprintf(&b, "Matched: %d  Missing: %d\n", r.Matched, r.Missing)

	writeIssues := func(issues []Issue) {
		for _, issue := range issues {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", issue.Severity, issue.Category, issue.Message)
		}
	}

	writeIssues(r.Issues)
	for _, res := range r.Folders {
		writeIssues(res.Issues)
	}
	for _, res := range r.Objects {
		writeIssues(res.Issues)
	}
	return b.String()
}
