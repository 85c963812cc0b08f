package snapshot

import (
	"context"
	"testing"

	"github.com/hemanttanawade-debug/drive-migration/internal/access"
	"github.com/hemanttanawade-debug/drive-migration/internal/remote"
)

const owner = "alice@source.com"

func seedTenant(t *testing.T) *remote.Memory {
	t.Helper()
	m := remote.NewMemory("src")
	m.AddPrincipal(owner)

	m.Put(remote.Object{
		ID: "root-folder", Name: "Projects", MIMEType: remote.MIMEFolder,
		Owners: []string{owner},
	}, nil, nil)
	m.Put(remote.Object{
		ID: "sub-folder", Name: "2026", MIMEType: remote.MIMEFolder,
		ParentIDs: []string{"root-folder"}, Owners: []string{owner},
	}, nil, nil)
	m.Put(remote.Object{
		ID: "doc-1", Name: "plan", MIMEType: remote.MIMEDocument,
		ParentIDs: []string{"sub-folder"}, Owners: []string{owner},
	}, nil, []access.Entry{
		{Type: access.TypeUser, Role: access.RoleOwner, Email: owner},
		{Type: access.TypeUser, Role: access.RoleReader, Email: "bob@source.com"},
	})
	m.Put(remote.Object{
		ID: "bin-1", Name: "scan.pdf", MIMEType: "application/pdf", Size: 2048,
		ParentIDs: []string{"root-folder"}, Owners: []string{owner},
	}, []byte("pdf-bytes"), nil)
	return m
}

func TestCaptureWalksHierarchy(t *testing.T) {
	m := seedTenant(t)
	mapper := NewMapper(m, remote.DefaultRetryPolicy)

	snap, err := mapper.Capture(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}

	if snap.Summary.FolderCount != 2 {
		t.Errorf("folders = %d, want 2", snap.Summary.FolderCount)
	}
	if snap.Summary.ObjectCount != 2 {
		t.Errorf("objects = %d, want 2", snap.Summary.ObjectCount)
	}
	if snap.Summary.TotalBytes != 2048 {
		t.Errorf("bytes = %d, want 2048", snap.Summary.TotalBytes)
	}

	// Folders come out shallow first so reconstruction can create them
	// in order.
	if snap.Folders[0].Path != "/Projects" {
		t.Errorf("first folder path = %q, want /Projects", snap.Folders[0].Path)
	}
	if snap.Folders[1].Path != "/Projects/2026" {
		t.Errorf("second folder path = %q, want /Projects/2026", snap.Folders[1].Path)
	}

	if snap.Summary.GrantsByRole[access.RoleReader] != 1 {
		t.Errorf("reader grants = %d, want 1", snap.Summary.GrantsByRole[access.RoleReader])
	}
}

func TestCapturePaginates(t *testing.T) {
	m := seedTenant(t)
	m.SetPageSize(1)
	mapper := NewMapper(m, remote.DefaultRetryPolicy)

	snap, err := mapper.Capture(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Summary.FolderCount + snap.Summary.ObjectCount; got != 4 {
		t.Errorf("captured nodes = %d, want 4", got)
	}
	if m.Calls["ListOwned"] < 4 {
		t.Errorf("ListOwned calls = %d, want one per page", m.Calls["ListOwned"])
	}
}

func TestCaptureAttachesOrphansToRoot(t *testing.T) {
	m := remote.NewMemory("src")
	m.AddPrincipal(owner)
	// Parent owned by someone else: the node must fall back to the
	// synthetic root.
	m.Put(remote.Object{
		ID: "shared-parent", Name: "TeamDrive", MIMEType: remote.MIMEFolder,
		Owners: []string{"someone@source.com"},
	}, nil, nil)
	m.Put(remote.Object{
		ID: "doc-1", Name: "orphan", MIMEType: remote.MIMEDocument,
		ParentIDs: []string{"shared-parent"}, Owners: []string{owner},
	}, nil, nil)

	snap, err := NewMapper(m, remote.DefaultRetryPolicy).Capture(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(snap.Objects))
	}
	if snap.Objects[0].ParentID != "" {
		t.Errorf("orphan parent = %q, want synthetic root", snap.Objects[0].ParentID)
	}
}

func TestCaptureFirstParentWins(t *testing.T) {
	m := remote.NewMemory("src")
	m.AddPrincipal(owner)
	m.Put(remote.Object{ID: "a", Name: "A", MIMEType: remote.MIMEFolder, Owners: []string{owner}}, nil, nil)
	m.Put(remote.Object{ID: "b", Name: "B", MIMEType: remote.MIMEFolder, Owners: []string{owner}}, nil, nil)
	m.Put(remote.Object{
		ID: "doc-1", Name: "both", MIMEType: remote.MIMEDocument,
		ParentIDs: []string{"a", "b"}, Owners: []string{owner},
	}, nil, nil)

	snap, err := NewMapper(m, remote.DefaultRetryPolicy).Capture(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Objects[0].ParentID != "a" {
		t.Errorf("parent = %q, want first listed parent a", snap.Objects[0].ParentID)
	}
}

func TestCaptureEnumerationFailurePropagates(t *testing.T) {
	m := seedTenant(t)
	m.FailWith = func(op, id string) error {
		if op == "ListOwned" {
			return remote.Errorf(remote.KindPermissionDenied, op, "delegation missing")
		}
		return nil
	}

	_, err := NewMapper(m, remote.DefaultRetryPolicy).Capture(context.Background(), owner)
	if err == nil {
		t.Fatal("expected enumeration failure")
	}
	if remote.KindOf(err) != remote.KindPermissionDenied {
		t.Errorf("kind = %v, want permission_denied", remote.KindOf(err))
	}
}
