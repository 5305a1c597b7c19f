package auth

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed permissions.yaml
var defaultMatrixYAML []byte

// Matrix maps role x resource type to the set of allowed actions. It is
// immutable once built and safe for concurrent use.
type Matrix struct {
	grants map[Role]map[ResourceType]map[string]struct{}
}

var matrixContexts = []ResourceType{ResourceOrg, ResourceProject, ResourceDocument}

// DefaultMatrix returns the built-in matrix.
func DefaultMatrix() *Matrix {
	m, err := ParseMatrix(defaultMatrixYAML)
	if err != nil {
		panic(fmt.Sprintf("auth: embedded permission matrix: %v", err))
	}
	return m
}

// LoadMatrixFile reads a matrix from a YAML file.
func LoadMatrixFile(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permission matrix: %w", err)
	}
	return ParseMatrix(data)
}

// ParseMatrix decodes and validates a YAML matrix document. Every known role
// must be present; unknown roles or resource types are rejected.
func ParseMatrix(data []byte) (*Matrix, error) {
	var raw map[string]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode permission matrix: %v", ErrInvalidInput, err)
	}
	m := &Matrix{grants: make(map[Role]map[ResourceType]map[string]struct{}, len(raw))}
	for rawRole, columns := range raw {
		role := Role(strings.ToLower(strings.TrimSpace(rawRole)))
		if !role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q in permission matrix", ErrInvalidInput, rawRole)
		}
		cols := make(map[ResourceType]map[string]struct{}, len(matrixContexts))
		for rawCtx, actions := range columns {
			rt := ResourceType(strings.ToLower(strings.TrimSpace(rawCtx)))
			if !isMatrixContext(rt) {
				return nil, fmt.Errorf("%w: unknown resource type %q for role %s", ErrInvalidInput, rawCtx, role)
			}
			set := make(map[string]struct{}, len(actions))
			for _, a := range actions {
				a = strings.TrimSpace(a)
				if a != "" {
					set[a] = struct{}{}
				}
			}
			cols[rt] = set
		}
		m.grants[role] = cols
	}
	for _, role := range Roles {
		if _, ok := m.grants[role]; !ok {
			return nil, fmt.Errorf("%w: permission matrix has no entry for role %s", ErrInvalidInput, role)
		}
	}
	return m, nil
}

func isMatrixContext(rt ResourceType) bool {
	for _, c := range matrixContexts {
		if c == rt {
			return true
		}
	}
	return false
}

// Has reports whether role may perform action on resources of type rt.
func (m *Matrix) Has(role Role, rt ResourceType, action string) bool {
	if m == nil {
		return false
	}
	_, ok := m.grants[role][rt][action]
	return ok
}

// actions returns the sorted actions of role on rt.
func (m *Matrix) actions(role Role, rt ResourceType) []string {
	if m == nil {
		return nil
	}
	set := m.grants[role][rt]
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
