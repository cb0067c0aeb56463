package domain

import "fmt"

// ResourceKind names one of the artifacts required before serving.
type ResourceKind string

const (
	// ResourceRoutes is the route definitions consumed by the execution engine.
	ResourceRoutes ResourceKind = "routes"
	// ResourceRules is the rule specification describing the exposed capabilities.
	ResourceRules ResourceKind = "rules"
	// ResourceDependencies is the dependency manifest of the routes.
	ResourceDependencies ResourceKind = "dependencies"
)

// ResourceScheme selects the store a reference resolves against.
type ResourceScheme string

const (
	// SchemeFile reads from the local disk.
	SchemeFile ResourceScheme = "file"
	// SchemeDatastore fetches through the registry data store.
	SchemeDatastore ResourceScheme = "datastore"
)

// ResourceReference is a logical pointer to an artifact.
type ResourceReference struct {
	Kind   ResourceKind
	Scheme ResourceScheme
	Path   string
}

func (r ResourceReference) String() string {
	return fmt.Sprintf("%s://%s", r.Scheme, r.Path)
}

// DownloadedResources maps each acquired kind to its local path.
type DownloadedResources map[ResourceKind]string

// Clone returns an independent copy.
func (d DownloadedResources) Clone() DownloadedResources {
	out := make(DownloadedResources, len(d))
	for kind, path := range d {
		out[kind] = path
	}
	return out
}
