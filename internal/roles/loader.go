package roles

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"missionflow/internal/logging"
)

// catalogFile is the on-disk catalog format:
//
//	roles:
//	  - id: writer
//	    display_name: Content Writer
//	    base_instructions: |
//	      ...
type catalogFile struct {
	IncludeBuiltins bool        `yaml:"include_builtins"`
	Roles           []AgentRole `yaml:"roles"`
}

// Parse builds a registry from YAML. With include_builtins the built-in roles
// come first and file roles may not reuse their ids.
func Parse(data []byte) (*Registry, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse role catalog: %w", err)
	}

	all := cf.Roles
	if cf.IncludeBuiltins {
		all = append(append([]AgentRole{}, builtinRoles...), cf.Roles...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("role catalog is empty")
	}
	return NewRegistry(all...)
}

// LoadFile reads a YAML role catalog.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role catalog: %w", err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Catalog("loaded %d roles from %s", reg.Len(), path)
	return reg, nil
}

// Load returns the catalog at path, or the built-in roles when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
