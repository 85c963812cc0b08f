package remote

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/hemanttanawade-debug/drive-migration/internal/access"
)

func init() {
	Register("memory", func(tenant string, opts map[string]string) (Service, error) {
		return NewMemory(tenant), nil
	})
}

// Memory is an in-memory Service implementation. It backs the test suite
// and the "memory" driver used for smoke-testing the CLI without tenant
// credentials.
type Memory struct {
	mu         sync.Mutex
	tenant     string
	actor      string
	seq        int
	objects    map[string]*memObject
	principals map[string]bool
	pageSize   int

	// Calls counts invocations per operation name.
	Calls map[string]int

	// FailWith, when set, is consulted before every operation and may
	// inject a failure. Used by tests to exercise the error taxonomy.
	FailWith func(op, id string) error
}

type memObject struct {
	Object
	Content []byte
	Entries []access.Entry
}

// NewMemory creates an empty in-memory tenant.
func NewMemory(tenant string) *Memory {
	return &Memory{
		tenant:     tenant,
		objects:    make(map[string]*memObject),
		principals: make(map[string]bool),
		pageSize:   100,
		Calls:      make(map[string]int),
	}
}

// SetPageSize overrides the listing page size; tests use small pages to
// exercise continuation-token chains.
func (m *Memory) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// SetActor sets the identity that owns objects created through Upload,
// CreateFolder and Copy.
func (m *Memory) SetActor(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actor = email
}

// AddPrincipal seeds a principal into the tenant directory.
func (m *Memory) AddPrincipal(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principals[email] = true
}

// Put seeds an object. The id is assigned when obj.ID is empty.
func (m *Memory) Put(obj Object, content []byte, entries []access.Entry) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj.ID == "" {
		m.seq++
		obj.ID = fmt.Sprintf("%s-obj-%d", m.tenant, m.seq)
	}
	m.objects[obj.ID] = &memObject{Object: obj, Content: content, Entries: entries}
	return obj.ID
}

// Get returns a copy of a stored object's metadata for assertions.
func (m *Memory) Get(id string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return Object{}, false
	}
	return o.Object, true
}

// EntriesOf returns a copy of a stored object's access entries.
func (m *Memory) EntriesOf(id string) []access.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return nil
	}
	out := make([]access.Entry, len(o.Entries))
	copy(out, o.Entries)
	return out
}

func (m *Memory) begin(op, id string) error {
	m.mu.Lock()
	m.Calls[op]++
	fail := m.FailWith
	m.mu.Unlock()
	if fail != nil {
		return fail(op, id)
	}
	return nil
}

func (m *Memory) ListOwned(ctx context.Context, principal, pageToken string) (Page, error) {
	if err := m.begin("ListOwned", principal); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, o := range m.objects {
		for _, owner := range o.Owners {
			if owner == principal {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return Page{}, Errorf(KindOther, "ListOwned", "bad page token %q", pageToken)
		}
		start = n
	}
	end := start + m.pageSize
	if end > len(ids) {
		end = len(ids)
	}

	page := Page{}
	for _, id := range ids[start:end] {
		page.Objects = append(page.Objects, m.objects[id].Object)
	}
	if end < len(ids) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (m *Memory) GetDetails(ctx context.Context, id string) (Object, error) {
	if err := m.begin("GetDetails", id); err != nil {
		return Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return Object{}, Errorf(KindNotFound, "GetDetails", "object %s", id)
	}
	return o.Object, nil
}

func (m *Memory) GetAccessEntries(ctx context.Context, id string) ([]access.Entry, error) {
	if err := m.begin("GetAccessEntries", id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return nil, Errorf(KindNotFound, "GetAccessEntries", "object %s", id)
	}
	out := make([]access.Entry, len(o.Entries))
	copy(out, o.Entries)
	return out, nil
}

func (m *Memory) Download(ctx context.Context, id string) ([]byte, error) {
	if err := m.begin("Download", id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return nil, Errorf(KindNotFound, "Download", "object %s", id)
	}
	out := make([]byte, len(o.Content))
	copy(out, o.Content)
	return out, nil
}

func (m *Memory) ExportAs(ctx context.Context, id, targetMIME string) ([]byte, error) {
	if err := m.begin("ExportAs", id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return nil, Errorf(KindNotFound, "ExportAs", "object %s", id)
	}
	return []byte(fmt.Sprintf("export(%s as %s)", o.Name, targetMIME)), nil
}

func (m *Memory) Upload(ctx context.Context, content []byte, name, mimeType, parentID string) (string, error) {
	if err := m.begin("Upload", name); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%s-obj-%d", m.tenant, m.seq)
	obj := Object{ID: id, Name: name, MIMEType: mimeType, Size: int64(len(content))}
	if parentID != "" {
		obj.ParentIDs = []string{parentID}
	}
	if m.actor != "" {
		obj.Owners = []string{m.actor}
	}
	m.objects[id] = &memObject{Object: obj, Content: content}
	return id, nil
}

func (m *Memory) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := m.begin("CreateFolder", name); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%s-folder-%d", m.tenant, m.seq)
	obj := Object{ID: id, Name: name, MIMEType: MIMEFolder}
	if parentID != "" {
		obj.ParentIDs = []string{parentID}
	}
	if m.actor != "" {
		obj.Owners = []string{m.actor}
	}
	m.objects[id] = &memObject{Object: obj}
	return id, nil
}

func (m *Memory) Copy(ctx context.Context, id, newName, parentID string) (string, error) {
	if err := m.begin("Copy", id); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.objects[id]
	if !ok {
		return "", Errorf(KindNotFound, "Copy", "object %s", id)
	}
	m.seq++
	newID := fmt.Sprintf("%s-obj-%d", m.tenant, m.seq)
	obj := Object{ID: newID, Name: newName, MIMEType: src.MIMEType, Size: src.Size}
	if parentID != "" {
		obj.ParentIDs = []string{parentID}
	}
	if m.actor != "" {
		obj.Owners = []string{m.actor}
	}
	m.objects[newID] = &memObject{Object: obj, Content: src.Content}
	return newID, nil
}

func (m *Memory) CreateAccessEntry(ctx context.Context, id string, e access.Entry) error {
	if err := m.begin("CreateAccessEntry", id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return Errorf(KindNotFound, "CreateAccessEntry", "object %s", id)
	}
	if e.Email != "" && (e.Type == access.TypeUser || e.Type == access.TypeGroup) {
		if !m.principals[e.Email] {
			return Errorf(KindNotFound, "CreateAccessEntry", "grantee %s not found in destination tenant", e.Email)
		}
	}
	o.Entries = append(o.Entries, e)
	return nil
}

func (m *Memory) TransferOwnership(ctx context.Context, id, newOwner string) error {
	if err := m.begin("TransferOwnership", id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return Errorf(KindNotFound, "TransferOwnership", "object %s", id)
	}
	o.Owners = []string{newOwner}
	return nil
}

func (m *Memory) ExistsPrincipal(ctx context.Context, identity string) (bool, error) {
	if err := m.begin("ExistsPrincipal", identity); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principals[identity], nil
}

// ListPrincipals implements Directory for the in-memory tenant.
func (m *Memory) ListPrincipals(ctx context.Context, domain string) ([]Principal, error) {
	if err := m.begin("ListPrincipals", domain); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Principal
	for email := range m.principals {
		out = append(out, Principal{Email: email})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// WriteCalls reports how many content-mutating operations have run. The
// idempotence tests assert this stays zero on a re-run.
func (m *Memory) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls["Upload"] + m.Calls["CreateFolder"] + m.Calls["Copy"] +
		m.Calls["CreateAccessEntry"] + m.Calls["TransferOwnership"]
}
