package domain

import "github.com/google/jsonschema-go/jsonschema"

// Descriptor is a catalog entry as published to the remote catalog service.
type Descriptor interface {
	DescriptorName() string
	DescriptorKind() CapabilityKind
}

// ToolDescriptor is the published form of an invocable capability.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	URI         string             `json:"uri"`
	Type        string             `json:"type"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

func (t *ToolDescriptor) DescriptorName() string         { return t.Name }
func (t *ToolDescriptor) DescriptorKind() CapabilityKind { return CapabilityTool }

// ResourceDescriptor is the published form of a retrievable capability.
type ResourceDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Type        string `json:"type"`
}

func (r *ResourceDescriptor) DescriptorName() string         { return r.Name }
func (r *ResourceDescriptor) DescriptorKind() CapabilityKind { return CapabilityResource }

// RegisteredEntry records a descriptor accepted by the remote catalog.
type RegisteredEntry struct {
	Kind CapabilityKind `json:"kind"`
	Name string         `json:"name"`
}
