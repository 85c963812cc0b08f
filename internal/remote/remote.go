// Package remote defines the object-store collaborator interface the
// migration core consumes, its error taxonomy, and a bounded-backoff call
// helper. Concrete transports register themselves as drivers; the core
// never depends on a particular API client.
package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hemanttanawade-debug/drive-migration/internal/access"
)

// Well-known content-type tags. These mirror the source system's vocabulary
// so snapshots compare cleanly across tenants.
const (
	MIMEFolder       = "application/vnd.google-apps.folder"
	MIMEShortcut     = "application/vnd.google-apps.shortcut"
	MIMEDocument     = "application/vnd.google-apps.document"
	MIMESpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MIMEPresentation = "application/vnd.google-apps.presentation"
	MIMEDrawing      = "application/vnd.google-apps.drawing"

	// NativePrefix marks editable native-format documents that cannot be
	// downloaded as raw bytes.
	NativePrefix = "application/vnd.google-apps."
)

// Object is the metadata the remote system reports for a file or folder.
type Object struct {
	ID       string
	Name     string
	MIMEType string
	Size     int64
	// ParentIDs lists containing folders. Multi-parent sources collapse to
	// the first entry for hierarchy reconstruction.
	ParentIDs []string
	Owners    []string
	Shared    bool
}

// Page is one page of a paginated listing.
type Page struct {
	Objects   []Object
	NextToken string
}

// Service is the remote-object collaborator. Every call may fail
// transiently; callers classify failures with KindOf and retry via Call.
type Service interface {
	// ListOwned lists objects owned by the principal, one page at a time.
	// An empty NextToken ends the chain.
	ListOwned(ctx context.Context, principal, pageToken string) (Page, error)

	// GetDetails fetches full metadata for one object.
	GetDetails(ctx context.Context, id string) (Object, error)

	// GetAccessEntries fetches the object's access-control list. This is a
	// separate call because listings cannot embed full ACLs at scale.
	GetAccessEntries(ctx context.Context, id string) ([]access.Entry, error)

	// Download fetches the full content of an opaque object.
	Download(ctx context.Context, id string) ([]byte, error)

	// ExportAs converts a native-format document to the target format.
	ExportAs(ctx context.Context, id, targetMIME string) ([]byte, error)

	// Upload creates a new object under parentID owned by the caller's
	// identity and returns the new object id.
	Upload(ctx context.Context, content []byte, name, mimeType, parentID string) (string, error)

	// CreateFolder creates a folder under parentID ("" for root).
	CreateFolder(ctx context.Context, name, parentID string) (string, error)

	// Copy duplicates a native-format document under the caller's identity.
	Copy(ctx context.Context, id, newName, parentID string) (string, error)

	// CreateAccessEntry applies one translated access entry to an object.
	CreateAccessEntry(ctx context.Context, id string, e access.Entry) error

	// TransferOwnership promotes newOwner to owner of the object. The
	// transport performs the two-step grant-then-promote sequence.
	TransferOwnership(ctx context.Context, id, newOwner string) error

	// ExistsPrincipal reports whether the identity exists in this tenant.
	ExistsPrincipal(ctx context.Context, identity string) (bool, error)
}

// Principal is a directory listing entry.
type Principal struct {
	Email     string
	Suspended bool
	Archived  bool
}

// Directory is the principal-directory collaborator used by dry-run and
// mapping construction.
type Directory interface {
	ListPrincipals(ctx context.Context, domain string) ([]Principal, error)
}

// Factory builds a Service for one tenant from opaque driver options.
type Factory func(tenant string, opts map[string]string) (Service, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a transport available under the given driver name.
// Concrete API clients call this from an init function.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = f
}

// Open builds a Service for a tenant using the named driver.
func Open(driver, tenant string, opts map[string]string) (Service, error) {
	driversMu.RLock()
	f, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown remote driver %q (registered: %v)", driver, driverNames())
	}
	return f(tenant, opts)
}

func driverNames() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
