// Package identity supplies requester principals and the role and
// permission model that gates intake operations.
package identity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Role is a named tier of access. Higher tiers are supersets of lower ones.
type Role string

const (
	// RoleViewer can read tasks and reports.
	RoleViewer Role = "viewer"
	// RoleMember can additionally create tasks.
	RoleMember Role = "member"
	// RoleManager can additionally assign tasks and override conflicts.
	RoleManager Role = "manager"
	// RoleAdmin holds every permission.
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleMember, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a string to a Role, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Permission names one guarded operation.
type Permission string

const (
	// PermTasksCreate allows submitting new tasks through intake.
	PermTasksCreate Permission = "tasks:create"
	// PermTasksAssign allows accepting a scored assignment.
	PermTasksAssign Permission = "tasks:assign"
	// PermConflictsOverride allows clearing overridable conflicts.
	PermConflictsOverride Permission = "conflicts:override"
	// PermReportsRead allows reading workload and bottleneck reports.
	PermReportsRead Permission = "reports:read"
)

// rolePermissions is the role matrix. Each tier extends the one below it.
var rolePermissions = map[Role][]Permission{
	RoleViewer:  {PermReportsRead},
	RoleMember:  {PermReportsRead, PermTasksCreate},
	RoleManager: {PermReportsRead, PermTasksCreate, PermTasksAssign, PermConflictsOverride},
	RoleAdmin:   {PermReportsRead, PermTasksCreate, PermTasksAssign, PermConflictsOverride},
}

// Permissions returns the permissions granted by the role, sorted.
func (r Role) Permissions() []Permission {
	perms := make([]Permission, len(rolePermissions[r]))
	copy(perms, rolePermissions[r])
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// Can reports whether the role grants the permission.
func (r Role) Can(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// Principal identifies the human or system actor behind a request.
type Principal struct {
	// ID is the unique principal identifier.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Role determines the baseline permission set.
	Role Role `json:"role"`
	// Grants are extra permissions held directly, beyond the role.
	Grants []Permission `json:"grants,omitempty"`
}

// Can reports whether the principal holds the permission, either directly
// or through its role.
func (p Principal) Can(perm Permission) bool {
	for _, g := range p.Grants {
		if g == perm {
			return true
		}
	}
	return p.Role.Can(perm)
}

// ErrPermissionDenied is returned when a principal lacks a required
// permission.
var ErrPermissionDenied = errors.New("permission denied")

// ErrUnknownPrincipal is returned when a principal ID cannot be resolved.
var ErrUnknownPrincipal = errors.New("unknown principal")

// Require returns nil when the principal holds the permission and a wrapped
// ErrPermissionDenied otherwise.
func Require(p Principal, perm Permission) error {
	if p.Can(perm) {
		return nil
	}
	return fmt.Errorf("%s (%s) requires %s: %w", p.ID, p.Role, perm, ErrPermissionDenied)
}

// Provider resolves principal IDs to principals.
type Provider interface {
	Lookup(id string) (Principal, error)
}

// Static is an in-memory provider backed by a fixed principal set, used by
// the CLI and by tests. Lookups are case-insensitive on ID.
type Static struct {
	mu         sync.RWMutex
	principals map[string]Principal
}

// NewStatic creates a provider holding the given principals.
func NewStatic(principals ...Principal) *Static {
	s := &Static{principals: make(map[string]Principal, len(principals))}
	for _, p := range principals {
		s.principals[strings.ToLower(p.ID)] = p
	}
	return s
}

// Put adds or replaces a principal.
func (s *Static) Put(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[strings.ToLower(p.ID)] = p
}

// Lookup returns the principal with the given ID.
func (s *Static) Lookup(id string) (Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[strings.ToLower(id)]
	if !ok {
		return Principal{}, fmt.Errorf("%q: %w", id, ErrUnknownPrincipal)
	}
	return p, nil
}

// System is the built-in principal used by seed and maintenance flows.
func System() Principal {
	return Principal{ID: "system", Name: "System", Role: RoleAdmin}
}
