// Package roles holds the agent role catalog: the static definitions of every
// step a workflow can run. Roles are loaded once (built-ins or a YAML file)
// and never change while a run is executing.
package roles

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRoleNotFound is returned when a role id is absent from the catalog.
var ErrRoleNotFound = errors.New("role not found")

// AgentRole is the static identity of one pipeline step.
type AgentRole struct {
	ID               string `yaml:"id" json:"id"`
	DisplayName      string `yaml:"display_name" json:"display_name"`
	BaseInstructions string `yaml:"base_instructions" json:"base_instructions"`
}

// Catalog looks up roles by id. Implementations are read-only.
type Catalog interface {
	Get(id string) (AgentRole, error)
}

// Registry is an ordered, immutable role catalog.
type Registry struct {
	roles []AgentRole
	byID  map[string]int
}

// NewRegistry validates and indexes roles. Ids must be unique and non-empty
// and every role needs base instructions.
func NewRegistry(roles ...AgentRole) (*Registry, error) {
	r := &Registry{
		roles: make([]AgentRole, 0, len(roles)),
		byID:  make(map[string]int, len(roles)),
	}
	for i, role := range roles {
		role.ID = strings.TrimSpace(role.ID)
		if role.ID == "" {
			return nil, fmt.Errorf("role %d: id is required", i)
		}
		if _, dup := r.byID[role.ID]; dup {
			return nil, fmt.Errorf("role %q: duplicate id", role.ID)
		}
		if strings.TrimSpace(role.BaseInstructions) == "" {
			return nil, fmt.Errorf("role %q: base_instructions is required", role.ID)
		}
		if role.DisplayName == "" {
			role.DisplayName = role.ID
		}
		r.byID[role.ID] = len(r.roles)
		r.roles = append(r.roles, role)
	}
	return r, nil
}

// Get returns the role with the given id.
func (r *Registry) Get(id string) (AgentRole, error) {
	idx, ok := r.byID[id]
	if !ok {
		return AgentRole{}, fmt.Errorf("%w: %q", ErrRoleNotFound, id)
	}
	return r.roles[idx], nil
}

// List returns the roles in catalog order.
func (r *Registry) List() []AgentRole {
	out := make([]AgentRole, len(r.roles))
	copy(out, r.roles)
	return out
}

// Len returns the number of roles.
func (r *Registry) Len() int { return len(r.roles) }

// Resolve looks up every id in order. When any id is missing the error names
// all of them, so a caller can fix a workflow in one pass.
func Resolve(c Catalog, ids []string) ([]AgentRole, error) {
	if len(ids) == 0 {
		return nil, errors.New("workflow has no agents")
	}
	out := make([]AgentRole, 0, len(ids))
	var missing []string
	for _, id := range ids {
		role, err := c.Get(id)
		if err != nil {
			if !errors.Is(err, ErrRoleNotFound) {
				return nil, err
			}
			missing = append(missing, id)
			continue
		}
		out = append(out, role)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, strings.Join(missing, ", "))
	}
	return out, nil
}
