package router

import "capd/internal/domain"

// ParameterMapper moves an argument into the engine parameter set for one
// mapping type.
type ParameterMapper interface {
	Type() string
	Map(prop domain.PropertyDefinition, args map[string]string, params map[string]string)
}

// HeaderMapper places the argument under the mapped header name.
type HeaderMapper struct{}

func (HeaderMapper) Type() string { return domain.MappingHeader }

func (HeaderMapper) Map(prop domain.PropertyDefinition, args map[string]string, params map[string]string) {
	value, ok := args[prop.Name]
	if !ok {
		return
	}
	params[prop.Mapping.Name] = value
}

// buildParameters collects side parameters for properties whose mapping type
// has a registered mapper. Other properties stay in the body.
func buildParameters(def domain.RuleDefinition, args map[string]string, mappers map[string]ParameterMapper) map[string]string {
	params := make(map[string]string)
	for _, prop := range def.Properties {
		if prop.Mapping == nil {
			continue
		}
		mapper, ok := mappers[prop.Mapping.Type]
		if !ok {
			continue
		}
		mapper.Map(prop, args, params)
	}
	return params
}
