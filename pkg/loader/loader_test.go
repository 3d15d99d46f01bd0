package loader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/loader"
	"github.com/aretw0/cadence/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onboardingYAML = `
protocols:
  - name: onboarding
    description: Greets and checks age
    steps:
      - id: greet
        action: prompt
        prompt: "Welcome {name}"
      - id: adult
        action: condition
        conditions:
          - variable: age
            operator: greater_than
            value: 17
        else_step: minor
      - id: done
        action: end
      - id: minor
        action: end
tools:
  - id: weather
    endpoint: https://api.example.com/weather
    method: post
    headers:
      X-Api-Key: secret
    parameters:
      city: "{city}"
      days: 3
    result_path: current.temp
`

func TestParse_YAML(t *testing.T) {
	b, err := loader.Parse([]byte(onboardingYAML))
	require.NoError(t, err)

	require.Len(t, b.Protocols, 1)
	p := b.Protocols[0]
	assert.Equal(t, "onboarding", p.Name)
	require.Len(t, p.Steps, 4)
	assert.Equal(t, domain.ActionPrompt, p.Steps[0].Action)
	assert.Equal(t, "minor", p.Steps[1].ElseStep)
	require.Len(t, p.Steps[1].Conditions, 1)
	assert.Equal(t, domain.OpGreaterThan, p.Steps[1].Conditions[0].Operator)
	assert.Equal(t, 17, p.Steps[1].Conditions[0].Value)

	require.Len(t, b.Tools, 1)
	tool := b.Tools[0]
	assert.Equal(t, "POST", tool.Method)
	assert.Equal(t, "secret", tool.Headers["X-Api-Key"])
	assert.Equal(t, "{city}", tool.Parameters["city"])
	assert.Equal(t, "current.temp", tool.ResultPath)
}

func TestParse_JSON(t *testing.T) {
	b, err := loader.Parse([]byte(`{
		"protocols": [{"name": "p", "steps": [{"id": "a", "action": "end"}]}],
		"tools": [{"id": "t", "endpoint": "mock://t"}]
	}`))
	require.NoError(t, err)
	require.Len(t, b.Protocols, 1)
	assert.Equal(t, "GET", b.Tools[0].Method)
}

func TestParse_Errors(t *testing.T) {
	_, err := loader.Parse([]byte("protocols: [unclosed"))
	assert.Error(t, err)

	_, err = loader.Parse([]byte("protocols:\n  - name: p\n    stepz: []\n"))
	assert.Error(t, err, "unknown keys are rejected")

	b, err := loader.Parse([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, b.Protocols)
}

func TestLoad_DirectoryAndRegister(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "onboarding.yaml"), []byte(onboardingYAML), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "extra.json"),
		[]byte(`{"protocols": [{"name": "extra", "steps": [{"id": "x", "action": "end"}]}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# ignored"), 0o644))

	b, err := loader.Load(dir)
	require.NoError(t, err)
	assert.Len(t, b.Protocols, 2)
	assert.Len(t, b.Tools, 1)

	reg := registry.NewRegistry()
	require.NoError(t, b.Register(reg))
	assert.Equal(t, []string{"extra", "onboarding"}, reg.Protocols())
	assert.Equal(t, []string{"weather"}, reg.Tools())
}

func TestLoadFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := loader.LoadFile(path)
	assert.ErrorIs(t, err, loader.ErrUnsupportedFile)
}

func TestRegister_StopsOnInvalidProtocol(t *testing.T) {
	b := &loader.Bundle{Protocols: []domain.Protocol{{Name: "empty"}}}
	err := b.Register(registry.NewRegistry())
	assert.ErrorIs(t, err, domain.ErrInvalidProtocol)
}
