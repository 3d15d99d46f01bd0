package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/cadence/pkg/domain"
)

// Registry holds the protocols and tools known to an engine.
// Lookups hand out copies, so a run keeps the definition it started with
// even if the entry is replaced while it executes.
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]*domain.Protocol
	tools     map[string]domain.ToolDefinition
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		protocols: make(map[string]*domain.Protocol),
		tools:     make(map[string]domain.ToolDefinition),
	}
}

// RegisterProtocol validates and stores a protocol.
// If a protocol with the same name exists, it is overwritten.
func (r *Registry) RegisterProtocol(p domain.Protocol) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.protocols[p.Name] = p.Clone()
	return nil
}

// RegisterTool stores a tool definition, replacing any previous one with the same id.
func (r *Registry) RegisterTool(t domain.ToolDefinition) error {
	if t.ID == "" {
		return fmt.Errorf("tool id is required")
	}
	if t.Endpoint == "" {
		return fmt.Errorf("tool %q: endpoint is required", t.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID] = cloneTool(t)
	return nil
}

// Protocol looks up a protocol by name.
func (r *Registry) Protocol(name string) (*domain.Protocol, error) {
	r.mu.RLock()
	p, ok := r.protocols[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.NotFoundError{Kind: domain.KindProtocol, ID: name}
	}
	return p.Clone(), nil
}

// Tool looks up a tool definition by id.
func (r *Registry) Tool(id string) (domain.ToolDefinition, error) {
	r.mu.RLock()
	t, ok := r.tools[id]
	r.mu.RUnlock()

	if !ok {
		return domain.ToolDefinition{}, &domain.NotFoundError{Kind: domain.KindTool, ID: id}
	}
	return cloneTool(t), nil
}

// Protocols returns the registered protocol names, sorted.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.protocols))
	for name := range r.protocols {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Tools returns the registered tool ids, sorted.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func cloneTool(t domain.ToolDefinition) domain.ToolDefinition {
	cp := t
	if t.Headers != nil {
		cp.Headers = make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			cp.Headers[k] = v
		}
	}
	if t.Parameters != nil {
		cp.Parameters = make(map[string]any, len(t.Parameters))
		for k, v := range t.Parameters {
			cp.Parameters[k] = v
		}
	}
	return cp
}
