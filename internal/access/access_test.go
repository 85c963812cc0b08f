package access

import "testing"

func TestTranslateRewritesDomain(t *testing.T) {
	domainMap := map[string]string{"source.com": "dest.com"}

	entry := Entry{Type: TypeUser, Role: RoleWriter, Email: "a@source.com"}
	got, ok := Translate(entry, domainMap)
	if !ok {
		t.Fatal("expected entry to translate, got skip")
	}
	if got.Email != "a@dest.com" {
		t.Errorf("email = %q, want a@dest.com", got.Email)
	}
	if got.Role != RoleWriter || got.Type != TypeUser {
		t.Errorf("type/role changed: %+v", got)
	}
}

func TestTranslateSkipsOwner(t *testing.T) {
	entry := Entry{Type: TypeUser, Role: RoleOwner, Email: "a@source.com"}
	if _, ok := Translate(entry, map[string]string{"source.com": "dest.com"}); ok {
		t.Error("owner entry must be skipped")
	}
}

func TestTranslateUnmappedDomainPassesThrough(t *testing.T) {
	entry := Entry{Type: TypeUser, Role: RoleReader, Email: "b@elsewhere.org"}
	got, ok := Translate(entry, map[string]string{"source.com": "dest.com"})
	if !ok {
		t.Fatal("expected translate")
	}
	if got.Email != "b@elsewhere.org" {
		t.Errorf("unmapped email changed: %q", got.Email)
	}
}

func TestTranslateDomainWide(t *testing.T) {
	entry := Entry{Type: TypeDomain, Role: RoleReader, Domain: "source.com"}
	got, ok := Translate(entry, map[string]string{"source.com": "dest.com"})
	if !ok {
		t.Fatal("expected translate")
	}
	if got.Domain != "dest.com" {
		t.Errorf("domain = %q, want dest.com", got.Domain)
	}
}

func TestTranslateAnyonePassesThrough(t *testing.T) {
	entry := Entry{Type: TypeAnyone, Role: RoleReader}
	got, ok := Translate(entry, map[string]string{"source.com": "dest.com"})
	if !ok {
		t.Fatal("expected translate")
	}
	if got != entry {
		t.Errorf("anyone entry changed: %+v", got)
	}
}

func TestMapEmailNotEmailShaped(t *testing.T) {
	if got := MapEmail("not-an-email", map[string]string{"source.com": "dest.com"}); got != "not-an-email" {
		t.Errorf("got %q", got)
	}
}

func TestSignature(t *testing.T) {
	cases := []struct {
		entry Entry
		want  string
	}{
		{Entry{Type: TypeUser, Role: RoleWriter, Email: "a@dest.com"}, "user:writer:a@dest.com"},
		{Entry{Type: TypeDomain, Role: RoleReader, Domain: "dest.com"}, "domain:reader:dest.com"},
		{Entry{Type: TypeAnyone, Role: RoleReader}, "anyone:reader:anyone"},
		{Entry{Type: TypeUser, Role: RoleOwner, Email: "a@dest.com"}, ""},
	}
	for _, c := range cases {
		if got := Signature(c.entry); got != c.want {
			t.Errorf("Signature(%+v) = %q, want %q", c.entry, got, c.want)
		}
	}
}

func TestCountNonOwner(t *testing.T) {
	entries := []Entry{
		{Type: TypeUser, Role: RoleOwner, Email: "o@source.com"},
		{Type: TypeUser, Role: RoleWriter, Email: "a@source.com"},
		{Type: TypeUser, Role: RoleReader, Email: "b@source.com"},
	}
	if got := CountNonOwner(entries); got != 2 {
		t.Errorf("CountNonOwner = %d, want 2", got)
	}
}
