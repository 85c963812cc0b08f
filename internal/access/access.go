// Package access models access-control entries and translates them between
// tenant identity namespaces.
package access

import (
	"fmt"
	"strings"
	"time"
)

// Type classifies who an access entry grants to.
type Type string

const (
	TypeUser   Type = "user"
	TypeGroup  Type = "group"
	TypeDomain Type = "domain"
	TypeAnyone Type = "anyone"
)

// Roles as exposed by the remote API.
const (
	RoleOwner  = "owner"
	RoleWriter = "writer"
	RoleReader = "reader"
)

// Entry is one access-control rule attached to an object or folder.
// It is recomputed from the remote system at snapshot time and never
// persisted on its own.
type Entry struct {
	Type      Type       `json:"type"`
	Role      string     `json:"role"`
	Email     string     `json:"email,omitempty"`
	Domain    string     `json:"domain,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Translate rewrites an entry into the destination tenant's identity
// namespace. The second return value is false when the entry must be
// skipped: owner entries are never replicated, ownership is established via
// an explicit transfer step.
func Translate(e Entry, domainMap map[string]string) (Entry, bool) {
	if e.Role == RoleOwner {
		return Entry{}, false
	}

	out := e
	if e.Email != "" {
		out.Email = MapEmail(e.Email, domainMap)
	}
	if e.Domain != "" {
		if dest, ok := domainMap[e.Domain]; ok {
			out.Domain = dest
		}
	}
	return out, true
}

// MapEmail rewrites the domain suffix of an email-shaped identity using the
// rename table. Unmapped domains pass through unchanged, as do identities
// that are not email-shaped.
func MapEmail(email string, domainMap map[string]string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	if dest, found := domainMap[domain]; found {
		return local + "@" + dest
	}
	return email
}

// Signature returns the comparison key used by reconciliation:
// type, role, and rewritten identity (or domain, or "anyone").
// Owner entries return the empty string and are excluded from comparison.
func Signature(e Entry) string {
	if e.Role == RoleOwner {
		return ""
	}
	identity := e.Email
	if identity == "" {
		identity = e.Domain
	}
	if identity == "" {
		identity = "anyone"
	}
	return fmt.Sprintf("%s:%s:%s", e.Type, e.Role, identity)
}

// CountNonOwner returns how many entries in the list are not owner grants.
func CountNonOwner(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if e.Role != RoleOwner {
			n++
		}
	}
	return n
}
