package registry_test

import (
	"testing"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Protocols(t *testing.T) {
	r := registry.NewRegistry()

	require.NoError(t, r.RegisterProtocol(domain.Protocol{
		Name:  "greet",
		Steps: []domain.Step{{ID: "hello", Action: domain.ActionPrompt, Prompt: "Hi"}},
	}))
	require.NoError(t, r.RegisterProtocol(domain.Protocol{
		Name:  "audit",
		Steps: []domain.Step{{ID: "done", Action: domain.ActionEnd}},
	}))

	assert.Equal(t, []string{"audit", "greet"}, r.Protocols())

	p, err := r.Protocol("greet")
	require.NoError(t, err)
	p.Steps[0].Prompt = "mutated"

	again, err := r.Protocol("greet")
	require.NoError(t, err)
	assert.Equal(t, "Hi", again.Steps[0].Prompt, "lookups must return copies")

	_, err = r.Protocol("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.KindProtocol, nf.Kind)
}

func TestRegistry_ReplaceProtocol(t *testing.T) {
	r := registry.NewRegistry()
	require.NoError(t, r.RegisterProtocol(domain.Protocol{Name: "p", Steps: []domain.Step{{ID: "a"}}}))
	require.NoError(t, r.RegisterProtocol(domain.Protocol{Name: "p", Steps: []domain.Step{{ID: "a"}, {ID: "b"}}}))

	p, err := r.Protocol("p")
	require.NoError(t, err)
	assert.Len(t, p.Steps, 2)
}

func TestRegistry_RejectsInvalidProtocol(t *testing.T) {
	r := registry.NewRegistry()
	err := r.RegisterProtocol(domain.Protocol{Name: "p", Steps: []domain.Step{{ID: "a"}, {ID: "a"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidProtocol)
	assert.Empty(t, r.Protocols())
}

func TestRegistry_Tools(t *testing.T) {
	r := registry.NewRegistry()

	assert.Error(t, r.RegisterTool(domain.ToolDefinition{Endpoint: "http://x"}))
	assert.Error(t, r.RegisterTool(domain.ToolDefinition{ID: "weather"}))

	require.NoError(t, r.RegisterTool(domain.ToolDefinition{
		ID:       "weather",
		Endpoint: "https://api.example.com/weather",
		Headers:  map[string]string{"X-Key": "{api_key}"},
	}))

	tool, err := r.Tool("weather")
	require.NoError(t, err)
	tool.Headers["X-Key"] = "leak"

	again, err := r.Tool("weather")
	require.NoError(t, err)
	assert.Equal(t, "{api_key}", again.Headers["X-Key"])
	assert.Equal(t, []string{"weather"}, r.Tools())

	_, err = r.Tool("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
