package engine

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteDefinition is the subset of the route DSL the engine runs.
type RouteDefinition struct {
	ID   string `yaml:"id"`
	From From   `yaml:"from"`
}

type From struct {
	URI   string `yaml:"uri"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	To      *ToStep      `yaml:"to,omitempty"`
	SetBody *SetBodyStep `yaml:"setBody,omitempty"`
	Log     *LogStep     `yaml:"log,omitempty"`
}

type ToStep struct {
	URI string `yaml:"uri"`
}

type SetBodyStep struct {
	Constant string `yaml:"constant"`
}

type LogStep struct {
	Message string `yaml:"message"`
}

type routeItem struct {
	Route *RouteDefinition `yaml:"route"`
}

// ParseRoutes decodes a list of route definitions.
func ParseRoutes(data []byte) ([]RouteDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var items []routeItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	routes := make([]RouteDefinition, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.Route == nil {
			return nil, fmt.Errorf("routes[%d]: only route entries are supported", i)
		}
		route := *item.Route
		route.From.URI = strings.TrimSpace(route.From.URI)
		if route.From.URI == "" {
			return nil, fmt.Errorf("routes[%d]: from.uri is required", i)
		}
		if route.ID == "" {
			route.ID = fmt.Sprintf("route%d", i+1)
		}
		if _, dup := seen[route.ID]; dup {
			return nil, fmt.Errorf("routes[%d]: duplicate route id %q", i, route.ID)
		}
		seen[route.ID] = struct{}{}
		for j, step := range route.From.Steps {
			if countActions(step) != 1 {
				return nil, fmt.Errorf("route %s step %d: exactly one action expected", route.ID, j)
			}
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func LoadRoutes(path string) ([]RouteDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRoutes(data)
}

// ParseDependencies splits a manifest separated by commas or newlines.
func ParseDependencies(data []byte) []string {
	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	deps := make([]string, 0, len(fields))
	for _, field := range fields {
		dep := strings.TrimSpace(field)
		if dep == "" || strings.HasPrefix(dep, "#") {
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}

func LoadDependencies(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}
	return ParseDependencies(data), nil
}

func countActions(step Step) int {
	n := 0
	if step.To != nil {
		n++
	}
	if step.SetBody != nil {
		n++
	}
	if step.Log != nil {
		n++
	}
	return n
}
