package dsl

import (
	"errors"
	"testing"

	"github.com/aretw0/cadence/pkg/domain"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	p, err := New("onboarding").
		Describe("Greets and checks age").
		Prompt("greet", "Welcome {name}!").
		Tool("lookup", "crm").
		Condition("adult").Where("age", domain.OpGreaterThan, 17).Else("minor").
		End("done").
		End("minor").
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if p.Name != "onboarding" || p.Description != "Greets and checks age" {
		t.Errorf("unexpected header: %+v", p)
	}
	if len(p.Steps) != 5 {
		t.Fatalf("Expected 5 steps, got %d", len(p.Steps))
	}

	want := []struct {
		id     string
		action domain.Action
	}{
		{"greet", domain.ActionPrompt},
		{"lookup", domain.ActionToolAPI},
		{"adult", domain.ActionCondition},
		{"done", domain.ActionEnd},
		{"minor", domain.ActionEnd},
	}
	for i, w := range want {
		if p.Steps[i].ID != w.id || p.Steps[i].Action != w.action {
			t.Errorf("step %d = %s/%s, want %s/%s", i, p.Steps[i].ID, p.Steps[i].Action, w.id, w.action)
		}
	}

	if p.Steps[0].Prompt != "Welcome {name}!" {
		t.Errorf("Expected prompt to be kept, got %q", p.Steps[0].Prompt)
	}
	if p.Steps[1].ToolRef != "crm" {
		t.Errorf("Expected tool_ref 'crm', got %q", p.Steps[1].ToolRef)
	}
	adult := p.Steps[2]
	if adult.ElseStep != "minor" || len(adult.Conditions) != 1 || adult.Conditions[0].Value != 17 {
		t.Errorf("unexpected condition step: %+v", adult)
	}
}

func TestBuilder_AddReturnsExistingStep(t *testing.T) {
	b := New("p")
	b.Prompt("a", "first")
	b.Add("a", domain.ActionPrompt).Go("c")
	b.End("b")
	b.End("c")

	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(p.Steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(p.Steps))
	}
	if p.Steps[0].Prompt != "first" || p.Steps[0].NextStep != "c" {
		t.Errorf("step was not refined in place: %+v", p.Steps[0])
	}
}

func TestBuilder_Errors(t *testing.T) {
	if _, err := New("empty").Build(); !errors.Is(err, domain.ErrInvalidProtocol) {
		t.Errorf("Expected ErrInvalidProtocol for a protocol without steps, got %v", err)
	}

	_, err := New("p").Prompt("a", "x").Go("ghost").End("b").Build()
	if err == nil {
		t.Error("Expected error for jump to unknown step")
	}
}

func TestBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected MustBuild to panic")
		}
	}()
	New("").MustBuild()
}
