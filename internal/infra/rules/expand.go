package rules

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// boolFields are the rule keys decoded as booleans.
var boolFields = map[string]struct{}{
	"required": {},
}

// expandEnv replaces ${NAME} references in string scalars with the process
// environment and returns the names that were unset.
func expandEnv(node *yaml.Node) []string {
	missing := make(map[string]struct{})
	expandNode(node, "", missing)
	return missingList(missing)
}

func expandNode(node *yaml.Node, key string, missing map[string]struct{}) {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			expandNode(child, "", missing)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			expandNode(node.Content[i+1], node.Content[i].Value, missing)
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			expandNode(node.Alias, key, missing)
		}
	case yaml.ScalarNode:
		expandScalar(node, key, missing)
	}
}

func expandScalar(node *yaml.Node, key string, missing map[string]struct{}) {
	if node.Tag != "" && node.Tag != "!!str" {
		return
	}
	if !strings.Contains(node.Value, "${") {
		return
	}

	expanded := envReference.ReplaceAllStringFunc(node.Value, func(ref string) string {
		name := ref[2 : len(ref)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing[name] = struct{}{}
		return ""
	})
	if expanded == node.Value {
		return
	}

	node.Value = expanded
	node.Tag = "!!str"
	if _, ok := boolFields[key]; ok && node.Style == 0 && isBoolLiteral(expanded) {
		node.Tag = "!!bool"
	}
}

func missingList(missing map[string]struct{}) []string {
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isBoolLiteral(value string) bool {
	return value == "true" || value == "false"
}
