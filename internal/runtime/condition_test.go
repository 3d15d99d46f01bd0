package runtime_test

import (
	"testing"

	"github.com/aretw0/cadence/internal/runtime"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestEvaluator_TruthTable(t *testing.T) {
	ev := runtime.NewEvaluator(nil)

	tests := []struct {
		name    string
		op      domain.Operator
		actual  any
		literal any
		want    bool
	}{
		{"equals same string", domain.OpEquals, "yes", "yes", true},
		{"equals different string", domain.OpEquals, "yes", "no", false},
		{"equals numeric string vs int", domain.OpEquals, "5", 5, true},
		{"equals int vs numeric string", domain.OpEquals, 5, "5", true},
		{"equals float vs int", domain.OpEquals, 5.0, 5, true},
		{"equals string vs bool", domain.OpEquals, "true", true, true},
		{"equals bool vs string", domain.OpEquals, false, "false", true},
		{"equals nil vs nil", domain.OpEquals, nil, nil, true},
		{"equals missing vs value", domain.OpEquals, nil, "x", false},
		{"equals incomparable", domain.OpEquals, "abc", 5, false},

		{"not_equals different", domain.OpNotEquals, "a", "b", true},
		{"not_equals coerced equal", domain.OpNotEquals, "5", 5, false},
		{"not_equals incomparable is false", domain.OpNotEquals, "abc", 5, false},
		{"not_equals missing vs value", domain.OpNotEquals, nil, "x", true},

		{"contains substring", domain.OpContains, "hello world", "world", true},
		{"contains missing substring", domain.OpContains, "hello", "world", false},
		{"contains stringified number", domain.OpContains, 12345, "234", true},
		{"contains list member", domain.OpContains, []any{"a", "b"}, "b", true},
		{"contains list non-member", domain.OpContains, []any{"a", "b"}, "c", false},
		{"contains nil", domain.OpContains, nil, "x", false},
		{"contains nil literal", domain.OpContains, "hello", nil, false},
		{"contains nil literal in list", domain.OpContains, []any{"a", nil}, nil, false},

		{"greater_than numeric string", domain.OpGreaterThan, "5", 3, true},
		{"greater_than equal", domain.OpGreaterThan, 3, 3, false},
		{"greater_than float", domain.OpGreaterThan, 3.5, "3", true},
		{"greater_than non-numeric", domain.OpGreaterThan, "abc", 3, false},
		{"greater_than nil", domain.OpGreaterThan, nil, 0, false},
		{"greater_than bool", domain.OpGreaterThan, true, 0, false},

		{"less_than", domain.OpLessThan, 2, 3, true},
		{"less_than numeric strings", domain.OpLessThan, "10", "9", false},
		{"less_than empty string", domain.OpLessThan, "", 3, false},

		{"unknown operator", domain.Operator("matches"), "a", "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := domain.Condition{Variable: "v", Operator: tt.op, Value: tt.literal}
			assert.Equal(t, tt.want, ev.Evaluate(c, tt.actual))
		})
	}
}

func TestCompare_ReportsErrors(t *testing.T) {
	_, err := runtime.Compare("between", 1, 2)
	assert.ErrorIs(t, err, runtime.ErrUnknownOperator)

	_, err = runtime.Compare(domain.OpGreaterThan, "x", 1)
	assert.ErrorIs(t, err, runtime.ErrIncomparable)
}
