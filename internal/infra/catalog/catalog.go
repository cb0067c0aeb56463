package catalog

import (
	"sort"

	"capd/internal/domain"
)

// Catalog is the immutable local view of the rule specification used for
// routing. Reloads build a new Catalog instead of mutating one.
type Catalog struct {
	tools     map[string]domain.RuleDefinition
	resources map[string]domain.RuleDefinition
}

// NewCatalog indexes a rule set by name. Later duplicates replace earlier ones.
func NewCatalog(set domain.RuleSet) *Catalog {
	c := &Catalog{
		tools:     make(map[string]domain.RuleDefinition),
		resources: make(map[string]domain.RuleDefinition),
	}
	for _, entry := range set.Entries {
		switch entry.Kind {
		case domain.CapabilityTool:
			c.tools[entry.Definition.Name] = entry.Definition
		case domain.CapabilityResource:
			c.resources[entry.Definition.Name] = entry.Definition
		}
	}
	return c
}

func (c *Catalog) Tool(name string) (domain.RuleDefinition, bool) {
	if c == nil {
		return domain.RuleDefinition{}, false
	}
	def, ok := c.tools[name]
	return def, ok
}

func (c *Catalog) Resource(name string) (domain.RuleDefinition, bool) {
	if c == nil {
		return domain.RuleDefinition{}, false
	}
	def, ok := c.resources[name]
	return def, ok
}

func (c *Catalog) Lookup(kind domain.CapabilityKind, name string) (domain.RuleDefinition, bool) {
	if kind == domain.CapabilityResource {
		return c.Resource(name)
	}
	return c.Tool(name)
}

// Len counts entries of both kinds.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tools) + len(c.resources)
}

// Names returns the sorted entry names of kind.
func (c *Catalog) Names(kind domain.CapabilityKind) []string {
	if c == nil {
		return nil
	}
	source := c.tools
	if kind == domain.CapabilityResource {
		source = c.resources
	}
	names := make([]string, 0, len(source))
	for name := range source {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries flattens the catalog back into rule entries, tools first.
func (c *Catalog) Entries() []domain.RuleEntry {
	if c == nil {
		return nil
	}
	entries := make([]domain.RuleEntry, 0, c.Len())
	for _, name := range c.Names(domain.CapabilityTool) {
		entries = append(entries, domain.RuleEntry{Kind: domain.CapabilityTool, Definition: c.tools[name]})
	}
	for _, name := range c.Names(domain.CapabilityResource) {
		entries = append(entries, domain.RuleEntry{Kind: domain.CapabilityResource, Definition: c.resources[name]})
	}
	return entries
}
