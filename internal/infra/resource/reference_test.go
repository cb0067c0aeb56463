package resource

import (
	"testing"

	"github.com/stretchr/testify/require"

	"capd/internal/domain"
)

func TestParseReference(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		scheme domain.ResourceScheme
		path   string
	}{
		{name: "unscoped defaults to file", raw: "/etc/routes.yaml", scheme: domain.SchemeFile, path: "/etc/routes.yaml"},
		{name: "file scheme", raw: "file:///etc/routes.yaml", scheme: domain.SchemeFile, path: "/etc/routes.yaml"},
		{name: "datastore scheme", raw: "datastore://routes.camel.yaml", scheme: domain.SchemeDatastore, path: "routes.camel.yaml"},
		{name: "scheme is case insensitive", raw: "DataStore://rules.yaml", scheme: domain.SchemeDatastore, path: "rules.yaml"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := ParseReference(domain.ResourceRoutes, tc.raw)
			require.NoError(t, err)
			require.Equal(t, domain.ResourceRoutes, ref.Kind)
			require.Equal(t, tc.scheme, ref.Scheme)
			require.Equal(t, tc.path, ref.Path)
		})
	}
}

func TestParseReference_Invalid(t *testing.T) {
	_, err := ParseReference(domain.ResourceRules, "  ")
	require.Error(t, err)

	_, err = ParseReference(domain.ResourceRules, "s3://bucket/rules.yaml")
	require.ErrorIs(t, err, domain.ErrUnsupportedScheme)

	_, err = ParseReference(domain.ResourceRules, "datastore://")
	require.Error(t, err)
}

func TestReferenceList(t *testing.T) {
	refs, err := NewReferenceList().
		Add(domain.ResourceRoutes, "datastore://routes.yaml", true).
		Add(domain.ResourceRules, "rules.yaml", false).
		Add(domain.ResourceDependencies, "", false).
		Build()
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, domain.ResourceRoutes, refs[0].Kind)
	require.Equal(t, domain.ResourceRules, refs[1].Kind)

	_, err = NewReferenceList().Add(domain.ResourceRoutes, "", true).Build()
	require.Error(t, err)

	_, err = NewReferenceList().
		Add(domain.ResourceRules, "a.yaml", false).
		Add(domain.ResourceRules, "b.yaml", false).
		Build()
	require.Error(t, err)
}
