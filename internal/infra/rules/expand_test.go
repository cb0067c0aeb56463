package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("SEARCH_HOST", "search.internal")
	t.Setenv("Q_REQUIRED", "true")
	core, logs := observer.New(zap.WarnLevel)
	data := `
mcp:
  tools:
    - search:
        description: costs $5 per ${UNIT}
        route: { uri: "http://${SEARCH_HOST}/q" }
        properties:
          - name: q
            required: ${Q_REQUIRED}
`
	set, err := Parse([]byte(data), "rules.yaml", zap.New(core))
	require.NoError(t, err)
	require.Len(t, set.Entries, 1)

	def := set.Entries[0].Definition
	require.Equal(t, "http://search.internal/q", def.Route.URI)
	require.Equal(t, "costs $5 per ", def.Description)
	require.True(t, def.Properties[0].Required)

	warnings := logs.FilterMessage("rule specification references unset environment variables").All()
	require.Len(t, warnings, 1)
	require.Equal(t, []any{"UNIT"}, warnings[0].ContextMap()["vars"])
}

func TestParse_ExpansionKeepsStringsVerbatim(t *testing.T) {
	t.Setenv("DESC", "1")
	t.Setenv("HEADER", "T")
	t.Setenv("ROUTE", "false")
	t.Setenv("FLAG", "1")
	data := `
mcp:
  tools:
    - search:
        description: ${DESC}
        route:
          id: ${ROUTE}
        properties:
          - name: q
            required: ${FLAG}
            mapping:
              type: header
              name: ${HEADER}
`
	_, err := Parse([]byte(data), "rules.yaml", zap.NewNop())
	require.Error(t, err, "required only accepts true or false")

	t.Setenv("FLAG", "false")
	set, err := Parse([]byte(data), "rules.yaml", zap.NewNop())
	require.NoError(t, err)
	def := set.Entries[0].Definition
	require.Equal(t, "1", def.Description)
	require.Equal(t, "false", def.Route.ID)
	require.Equal(t, "T", def.Properties[0].Mapping.Name)
	require.False(t, def.Properties[0].Required)
}
