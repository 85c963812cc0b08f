package validator

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hemanttanawade-debug/drive-migration/internal/access"
	"github.com/hemanttanawade-debug/drive-migration/internal/remote"
	"github.com/hemanttanawade-debug/drive-migration/internal/snapshot"
)

func srcSnap(objects, folders []snapshot.Node) *snapshot.Snapshot {
	return &snapshot.Snapshot{Principal: "alice@source.com", Objects: objects, Folders: folders}
}

func destSnap(objects, folders []snapshot.Node) *snapshot.Snapshot {
	return &snapshot.Snapshot{Principal: "alice@dest.com", Objects: objects, Folders: folders}
}

func TestValidateAllMatched(t *testing.T) {
	grants := []access.Entry{
		{Type: access.TypeUser, Role: access.RoleOwner, Email: "alice@source.com"},
		{Type: access.TypeUser, Role: access.RoleReader, Email: "bob@source.com"},
	}
	destGrants := []access.Entry{
		{Type: access.TypeUser, Role: access.RoleOwner, Email: "alice@dest.com"},
		{Type: access.TypeUser, Role: access.RoleReader, Email: "bob@dest.com"},
	}

	r := Validate(
		srcSnap(
			[]snapshot.Node{{Name: "scan.pdf", MIMEType: "application/pdf", Entries: grants}},
			[]snapshot.Node{{Name: "Projects"}},
		),
		destSnap(
			[]snapshot.Node{{Name: "scan.pdf", MIMEType: "application/pdf", Entries: destGrants}},
			[]snapshot.Node{{Name: "Projects"}},
		),
	)

	if r.Status != StatusSuccess {
		t.Errorf("status = %q, want success: %+v", r.Status, r)
	}
	if r.Matched != 2 || r.Missing != 0 {
		t.Errorf("matched = %d missing = %d", r.Matched, r.Missing)
	}
}

func TestValidateMissingObjectIsError(t *testing.T) {
	r := Validate(
		srcSnap([]snapshot.Node{
			{Name: "kept.pdf", MIMEType: "application/pdf"},
			{Name: "lost.pdf", MIMEType: "application/pdf"},
		}, nil),
		destSnap([]snapshot.Node{
			{Name: "kept.pdf", MIMEType: "application/pdf"},
		}, nil),
	)

	if r.Status != StatusPartial {
		t.Errorf("status = %q, want partial", r.Status)
	}
	if r.Missing != 1 {
		t.Errorf("missing = %d, want 1", r.Missing)
	}
	var found bool
	for _, res := range r.Objects {
		if res.Name == "lost.pdf" && !res.Found {
			found = true
			if len(res.Issues) == 0 || res.Issues[0].Severity != SeverityError {
				t.Errorf("missing object must carry an error issue: %+v", res.Issues)
			}
		}
	}
	if !found {
		t.Error("lost.pdf result not reported")
	}
}

func TestValidateNothingMatchedIsFailed(t *testing.T) {
	r := Validate(
		srcSnap([]snapshot.Node{{Name: "a.pdf", MIMEType: "application/pdf"}}, nil),
		destSnap(nil, nil),
	)
	if r.Status != StatusFailed {
		t.Errorf("status = %q, want failed", r.Status)
	}
}

func TestValidateAcceptsExportedConversion(t *testing.T) {
	r := Validate(
		srcSnap([]snapshot.Node{{Name: "plan", MIMEType: remote.MIMEDocument}}, nil),
		destSnap([]snapshot.Node{{
			Name:     "plan.docx",
			MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}}, nil),
	)

	if r.Status != StatusSuccess {
		t.Errorf("status = %q, want success: %+v", r.Status, r.Objects)
	}
	if !r.Objects[0].Found || !r.Objects[0].TypeMatch {
		t.Errorf("exported document not accepted: %+v", r.Objects[0])
	}
}

func TestValidateTypeMismatchIsWarning(t *testing.T) {
	r := Validate(
		srcSnap([]snapshot.Node{{Name: "scan.pdf", MIMEType: "application/pdf"}}, nil),
		destSnap([]snapshot.Node{{Name: "scan.pdf", MIMEType: "image/png"}}, nil),
	)

	if r.Status != StatusPartial {
		t.Errorf("status = %q, want partial", r.Status)
	}
	res := r.Objects[0]
	if res.TypeMatch {
		t.Error("type mismatch not detected")
	}
	if len(res.Issues) == 0 || res.Issues[0].Category != "type_mismatch" {
		t.Errorf("issues = %+v", res.Issues)
	}
}

func TestValidateAccessCountMismatch(t *testing.T) {
	srcGrants := []access.Entry{
		{Type: access.TypeUser, Role: access.RoleOwner, Email: "alice@source.com"},
		{Type: access.TypeUser, Role: access.RoleReader, Email: "bob@source.com"},
		{Type: access.TypeUser, Role: access.RoleWriter, Email: "carol@source.com"},
	}
	r := Validate(
		srcSnap([]snapshot.Node{{Name: "scan.pdf", MIMEType: "application/pdf", Entries: srcGrants}}, nil),
		destSnap([]snapshot.Node{{Name: "scan.pdf", MIMEType: "application/pdf"}}, nil),
	)

	res := r.Objects[0]
	if res.AccessCountMatch {
		t.Error("grant count mismatch not detected")
	}
	if r.Status != StatusPartial {
		t.Errorf("status = %q, want partial", r.Status)
	}
}

func TestValidateFlagsDuplicateNames(t *testing.T) {
	r := Validate(
		srcSnap([]snapshot.Node{
			{ID: "1", Name: "scan.pdf", MIMEType: "application/pdf"},
			{ID: "2", Name: "scan.pdf", MIMEType: "application/pdf"},
		}, nil),
		destSnap([]snapshot.Node{
			{Name: "scan.pdf", MIMEType: "application/pdf"},
		}, nil),
	)

	var flagged bool
	for _, issue := range r.Issues {
		if issue.Category == "duplicate_name" && issue.Severity == SeverityWarning {
			flagged = true
		}
	}
	if !flagged {
		t.Errorf("duplicate source names not flagged: %+v", r.Issues)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	src := srcSnap(
		[]snapshot.Node{
			{Name: "scan.pdf", MIMEType: "application/pdf"},
			{Name: "lost.pdf", MIMEType: "application/pdf"},
		},
		[]snapshot.Node{{Name: "Projects"}},
	)
	dst := destSnap(
		[]snapshot.Node{{Name: "scan.pdf", MIMEType: "application/pdf"}},
		[]snapshot.Node{{Name: "Projects"}},
	)

	first := Validate(src, dst)
	second := Validate(src, dst)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("recomputing the report changed it:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if !first.ValidatedAt.IsZero() {
		t.Error("comparison must not stamp a timestamp; that happens at write time")
	}
}

func TestRenderText(t *testing.T) {
	r := Validate(
		srcSnap([]snapshot.Node{{Name: "lost.pdf", MIMEType: "application/pdf"}}, nil),
		destSnap(nil, nil),
	)
	text := r.RenderText()
	for _, want := range []string{"alice@source.com", "Status: failed", "lost.pdf"} {
		if !strings.Contains(text, want) {
			t.Errorf("text report missing %q:\n%s", want, text)
		}
	}
}
