// Package loader reads protocol and tool definitions from YAML or JSON files.
//
// A document holds two optional lists:
//
//	protocols:
//	  - name: onboarding
//	    steps:
//	      - id: greet
//	        action: prompt
//	        prompt: "Welcome {name}"
//	tools:
//	  - id: weather
//	    endpoint: https://api.example.com/weather
//
// Documents are decoded into generic maps first and then into domain types
// with weak typing, so `value: "3"` and `value: 3` are both accepted where
// the target is numeric.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFile is returned for files that are neither YAML nor JSON.
var ErrUnsupportedFile = errors.New("unsupported definition file")

// Bundle is the content of one or more definition documents.
type Bundle struct {
	Protocols []domain.Protocol       `mapstructure:"protocols"`
	Tools     []domain.ToolDefinition `mapstructure:"tools"`
}

// Registrar receives the definitions of a bundle.
type Registrar interface {
	RegisterProtocol(p domain.Protocol) error
	RegisterTool(t domain.ToolDefinition) error
}

// Parse decodes a single YAML or JSON document.
func Parse(data []byte) (*Bundle, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	var b Bundle
	if raw == nil {
		return &b, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &b,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	normalize(&b)
	return &b, nil
}

// normalize turns YAML's nested map[string]any values into the shapes the
// runtime reads and fills defaults.
func normalize(b *Bundle) {
	for i := range b.Protocols {
		for j := range b.Protocols[i].Steps {
			for k := range b.Protocols[i].Steps[j].Conditions {
				c := &b.Protocols[i].Steps[j].Conditions[k]
				c.Value = plain(c.Value)
			}
		}
	}
	for i := range b.Tools {
		t := &b.Tools[i]
		if t.Method == "" {
			t.Method = domain.DefaultToolMethod
		}
		t.Method = strings.ToUpper(t.Method)
		for k, v := range t.Parameters {
			t.Parameters[k] = plain(v)
		}
	}
}

// plain converts map[any]any, which older YAML shapes can produce, into map[string]any.
func plain(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[fmt.Sprint(k)] = plain(inner)
		}
		return out
	case map[string]any:
		for k, inner := range val {
			val[k] = plain(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = plain(inner)
		}
		return val
	}
	return v
}

// LoadFile reads one definition file.
func LoadFile(path string) (*Bundle, error) {
	if !isDefinitionFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Load reads every path. Directories are walked recursively and only YAML
// and JSON files inside them are read.
func Load(paths ...string) (*Bundle, error) {
	var merged Bundle
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			b, err := LoadFile(p)
			if err != nil {
				return nil, err
			}
			merged.merge(b)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isDefinitionFile(path) {
				return nil
			}
			b, err := LoadFile(path)
			if err != nil {
				return err
			}
			merged.merge(b)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return &merged, nil
}

func (b *Bundle) merge(other *Bundle) {
	b.Protocols = append(b.Protocols, other.Protocols...)
	b.Tools = append(b.Tools, other.Tools...)
}

// Register adds tools first, then protocols. It stops at the first rejection.
func (b *Bundle) Register(r Registrar) error {
	for _, t := range b.Tools {
		if err := r.RegisterTool(t); err != nil {
			return fmt.Errorf("tool %q: %w", t.ID, err)
		}
	}
	for _, p := range b.Protocols {
		if err := r.RegisterProtocol(p); err != nil {
			return fmt.Errorf("protocol %q: %w", p.Name, err)
		}
	}
	return nil
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
