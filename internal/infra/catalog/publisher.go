package catalog

import (
	"context"
	"fmt"

	"capd/internal/domain"
)

// ServicesClient is the remote catalog API.
type ServicesClient interface {
	AddTool(ctx context.Context, tool *domain.ToolDescriptor) error
	RemoveTool(ctx context.Context, name string) error
	ExposeResource(ctx context.Context, resource *domain.ResourceDescriptor) error
	RemoveResource(ctx context.Context, name string) error
}

// Publisher pushes descriptors of one kind to the remote catalog.
type Publisher interface {
	Publish(ctx context.Context, descriptor domain.Descriptor) error
	Retract(ctx context.Context, name string) error
}

// PublishError reports a descriptor the remote catalog did not accept.
type PublishError struct {
	Kind domain.CapabilityKind
	Name string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

type ToolPublisher struct {
	Client ServicesClient
}

func (p ToolPublisher) Publish(ctx context.Context, descriptor domain.Descriptor) error {
	tool, ok := descriptor.(*domain.ToolDescriptor)
	if !ok {
		return fmt.Errorf("tool publisher: unexpected descriptor %T", descriptor)
	}
	return p.Client.AddTool(ctx, tool)
}

func (p ToolPublisher) Retract(ctx context.Context, name string) error {
	return p.Client.RemoveTool(ctx, name)
}

type ResourcePublisher struct {
	Client ServicesClient
}

func (p ResourcePublisher) Publish(ctx context.Context, descriptor domain.Descriptor) error {
	resource, ok := descriptor.(*domain.ResourceDescriptor)
	if !ok {
		return fmt.Errorf("resource publisher: unexpected descriptor %T", descriptor)
	}
	return p.Client.ExposeResource(ctx, resource)
}

func (p ResourcePublisher) Retract(ctx context.Context, name string) error {
	return p.Client.RemoveResource(ctx, name)
}
