package domain

// CapabilityKind distinguishes invocable tools from retrievable resources.
type CapabilityKind string

const (
	CapabilityTool     CapabilityKind = "tool"
	CapabilityResource CapabilityKind = "resource"
)

// MappingHeader routes an argument to an engine header parameter.
const MappingHeader = "header"

// RouteRef is the opaque handle the execution engine resolves.
type RouteRef struct {
	ID  string `yaml:"id,omitempty" json:"id,omitempty"`
	URI string `yaml:"uri,omitempty" json:"uri,omitempty"`
}

func (r RouteRef) IsZero() bool {
	return r.ID == "" && r.URI == ""
}

func (r RouteRef) String() string {
	if r.URI != "" {
		return r.URI
	}
	return r.ID
}

// Mapping tells the router where to place an argument.
type Mapping struct {
	Type string `yaml:"type" json:"type"`
	Name string `yaml:"name" json:"name"`
}

// PropertyDefinition describes one argument of a capability.
type PropertyDefinition struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"`
	Description string   `yaml:"description" json:"description"`
	Required    bool     `yaml:"required" json:"required"`
	Mapping     *Mapping `yaml:"mapping,omitempty" json:"mapping,omitempty"`
}

// RuleDefinition binds a capability name to a route and its arguments.
type RuleDefinition struct {
	Name        string               `yaml:"-" json:"name"`
	Description string               `yaml:"description" json:"description"`
	Route       RouteRef             `yaml:"route" json:"route"`
	Properties  []PropertyDefinition `yaml:"properties" json:"properties"`
}

// RuleEntry is a rule definition tagged with the section it came from.
type RuleEntry struct {
	Kind       CapabilityKind
	Definition RuleDefinition
}

// RuleSet is a parsed rule specification in file order.
type RuleSet struct {
	Entries []RuleEntry
}

// Count returns the number of entries of the given kind.
func (s RuleSet) Count(kind CapabilityKind) int {
	n := 0
	for _, entry := range s.Entries {
		if entry.Kind == kind {
			n++
		}
	}
	return n
}
