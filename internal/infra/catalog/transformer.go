package catalog

import (
	"github.com/google/jsonschema-go/jsonschema"

	"capd/internal/domain"
)

// Transformer turns a rule definition into the descriptor published remotely.
type Transformer interface {
	Transform(name string, def domain.RuleDefinition) domain.Descriptor
}

// CapabilityURI addresses a catalog entry of service.
func CapabilityURI(service, name string) string {
	return service + "://" + name
}

type ToolTransformer struct {
	Service string
}

func (t ToolTransformer) Transform(name string, def domain.RuleDefinition) domain.Descriptor {
	schema := &jsonschema.Schema{
		Type:       domain.DefaultInputSchemaType,
		Properties: make(map[string]*jsonschema.Schema, len(def.Properties)),
	}
	for _, prop := range def.Properties {
		propType := prop.Type
		if propType == "" {
			propType = domain.DefaultPropertyType
		}
		schema.Properties[prop.Name] = &jsonschema.Schema{
			Type:        propType,
			Description: prop.Description,
		}
		if prop.Required {
			schema.Required = append(schema.Required, prop.Name)
		}
	}
	return &domain.ToolDescriptor{
		Name:        name,
		Description: def.Description,
		URI:         CapabilityURI(t.Service, name),
		Type:        string(domain.CapabilityTool),
		InputSchema: schema,
	}
}

type ResourceTransformer struct {
	Service string
}

func (t ResourceTransformer) Transform(name string, def domain.RuleDefinition) domain.Descriptor {
	return &domain.ResourceDescriptor{
		Name:        name,
		Description: def.Description,
		Location:    CapabilityURI(t.Service, name),
		Type:        string(domain.CapabilityResource),
	}
}
