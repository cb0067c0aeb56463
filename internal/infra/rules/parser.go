package rules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"capd/internal/domain"
	"capd/internal/infra/telemetry"
)

const rootKey = "mcp"

var sectionKinds = map[string]domain.CapabilityKind{
	"tools":     domain.CapabilityTool,
	"resources": domain.CapabilityResource,
}

// ParseError reports a malformed rule specification. Entry is empty when the
// problem is not tied to a single definition.
type ParseError struct {
	Path  string
	Entry string
	Err   error
}

func (e *ParseError) Error() string {
	location := e.Path
	if location == "" {
		location = "rules"
	}
	if e.Entry != "" {
		return fmt.Sprintf("parse %s: entry %q: %v", location, e.Entry, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", location, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads and parses the rule specification at path.
func Load(path string, logger *zap.Logger) (domain.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RuleSet{}, &ParseError{Path: path, Err: err}
	}
	return Parse(data, path, logger)
}

// Parse decodes a YAML or JSON rule specification, keeping file order.
func Parse(data []byte, path string, logger *zap.Logger) (domain.RuleSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var set domain.RuleSet
	if len(bytes.TrimSpace(data)) == 0 {
		return set, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return set, &ParseError{Path: path, Err: err}
	}
	if len(doc.Content) == 0 {
		return set, nil
	}
	if missing := expandEnv(&doc); len(missing) > 0 {
		logger.Warn("rule specification references unset environment variables",
			zap.String("path", path),
			zap.Strings("vars", missing),
		)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return set, &ParseError{Path: path, Err: errors.New("document must be a mapping")}
	}
	mcp := lookup(root, rootKey)
	if mcp == nil {
		return set, &ParseError{Path: path, Err: fmt.Errorf("missing %q section", rootKey)}
	}
	if isNull(mcp) {
		return set, nil
	}
	if mcp.Kind != yaml.MappingNode {
		return set, &ParseError{Path: path, Err: fmt.Errorf("%q must be a mapping", rootKey)}
	}

	for i := 0; i+1 < len(mcp.Content); i += 2 {
		section := mcp.Content[i].Value
		kind, ok := sectionKinds[section]
		if !ok {
			logger.Warn("ignoring unknown rule section", zap.String("section", section))
			continue
		}
		seen := make(map[string]struct{})
		err := eachDefinition(mcp.Content[i+1], func(name string, node *yaml.Node) error {
			def, err := decodeDefinition(name, node)
			if err != nil {
				return &ParseError{Path: path, Entry: name, Err: err}
			}
			if _, dup := seen[name]; dup {
				logger.Warn("duplicate rule definition, last one wins",
					telemetry.KindField(string(kind)),
					telemetry.EntryField(name),
				)
			}
			seen[name] = struct{}{}
			set.Entries = append(set.Entries, domain.RuleEntry{Kind: kind, Definition: def})
			return nil
		})
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				return domain.RuleSet{}, err
			}
			return domain.RuleSet{}, &ParseError{Path: path, Err: fmt.Errorf("section %s: %w", section, err)}
		}
	}
	return set, nil
}

// eachDefinition walks either a list of single-key mappings or a plain mapping.
func eachDefinition(node *yaml.Node, fn func(name string, value *yaml.Node) error) error {
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: list items must be mappings", item.Line)
			}
			if err := eachPair(item, fn); err != nil {
				return err
			}
		}
		return nil
	case yaml.MappingNode:
		return eachPair(node, fn)
	case yaml.ScalarNode:
		if isNull(node) {
			return nil
		}
	}
	return fmt.Errorf("line %d: expected a list or mapping", node.Line)
}

func eachPair(node *yaml.Node, fn func(name string, value *yaml.Node) error) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := strings.TrimSpace(node.Content[i].Value)
		if name == "" {
			return fmt.Errorf("line %d: empty definition name", node.Content[i].Line)
		}
		if err := fn(name, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func decodeDefinition(name string, node *yaml.Node) (domain.RuleDefinition, error) {
	var def domain.RuleDefinition
	if !isNull(node) {
		if err := node.Decode(&def); err != nil {
			return def, err
		}
	}
	def.Name = name
	def.Route.ID = strings.TrimSpace(def.Route.ID)
	def.Route.URI = strings.TrimSpace(def.Route.URI)
	if def.Route.IsZero() {
		return def, errors.New("route requires an id or uri")
	}
	for i := range def.Properties {
		prop := &def.Properties[i]
		prop.Name = strings.TrimSpace(prop.Name)
		if prop.Name == "" {
			return def, fmt.Errorf("property %d has no name", i)
		}
		if prop.Type == "" {
			prop.Type = domain.DefaultPropertyType
		}
		if prop.Mapping != nil && prop.Mapping.Type != "" && prop.Mapping.Name == "" {
			prop.Mapping.Name = prop.Name
		}
	}
	return def, nil
}

func lookup(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
