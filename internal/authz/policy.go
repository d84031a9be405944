// Package authz decides which roles carry the hard-delete privilege.
package authz

import (
	"slices"
	"strings"

	"compass/internal/model"
)

// DefaultElevatedRoles is used when ELEVATED_ROLES is unset.
var DefaultElevatedRoles = []string{"super_admin"}

// RolePolicy grants the elevated privilege by role name, case-insensitively.
type RolePolicy struct {
	elevated map[string]struct{}
}

func NewRolePolicy(roles []string) RolePolicy {
	p := RolePolicy{elevated: map[string]struct{}{}}
	for _, role := range roles {
		role = normalizeRole(role)
		if role != "" {
			p.elevated[role] = struct{}{}
		}
	}
	return p
}

func (p RolePolicy) IsElevated(role string) bool {
	_, ok := p.elevated[normalizeRole(role)]
	return ok
}

// Actor stamps the privilege onto a request actor.
func (p RolePolicy) Actor(actor model.AuditActor) model.AuditActor {
	actor.Elevated = p.IsElevated(actor.Role)
	return actor
}

// Roles lists the elevated roles in sorted order.
func (p RolePolicy) Roles() []string {
	out := make([]string, 0, len(p.elevated))
	for role := range p.elevated {
		out = append(out, role)
	}
	slices.Sort(out)
	return out
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
