package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/spf13/cast"
)

var (
	// ErrUnknownOperator is reported for operators outside the known set.
	ErrUnknownOperator = errors.New("unknown condition operator")
	// ErrIncomparable is reported when the operands cannot be coerced to a common type.
	ErrIncomparable = errors.New("incomparable condition operands")
)

// Evaluator evaluates conditions against session values.
// Evaluation never fails: malformed conditions evaluate to false and are logged.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates an evaluator. A nil logger discards warnings.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Evaluator{logger: logger}
}

// Evaluate reports whether the condition holds for the actual value.
func (e *Evaluator) Evaluate(c domain.Condition, actual any) bool {
	ok, err := Compare(c.Operator, actual, c.Value)
	if err != nil {
		e.logger.Warn("Condition evaluated to false",
			"variable", c.Variable,
			"operator", c.Operator,
			"err", err,
		)
		return false
	}
	return ok
}

// Compare applies op to actual and literal.
// An error means the comparison could not be made; the verdict is then false.
func Compare(op domain.Operator, actual, literal any) (bool, error) {
	switch op {
	case domain.OpEquals:
		return equals(actual, literal)
	case domain.OpNotEquals:
		eq, err := equals(actual, literal)
		if err != nil {
			return false, err
		}
		return !eq, nil
	case domain.OpContains:
		return contains(actual, literal)
	case domain.OpGreaterThan:
		a, b, err := numericPair(actual, literal)
		if err != nil {
			return false, err
		}
		return a > b, nil
	case domain.OpLessThan:
		a, b, err := numericPair(actual, literal)
		if err != nil {
			return false, err
		}
		return a < b, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}

// equals compares after coercing actual to the literal's type.
func equals(actual, literal any) (bool, error) {
	if literal == nil || actual == nil {
		return literal == nil && actual == nil, nil
	}

	switch lit := literal.(type) {
	case bool:
		a, err := cast.ToBoolE(actual)
		if err != nil {
			return false, fmt.Errorf("%w: %v as bool", ErrIncomparable, actual)
		}
		return a == lit, nil
	case string:
		if a, ok := actual.(string); ok {
			return a == lit, nil
		}
		if isNumber(actual) {
			b, err := cast.ToFloat64E(lit)
			if err != nil {
				return false, fmt.Errorf("%w: %q as number", ErrIncomparable, lit)
			}
			a, _ := cast.ToFloat64E(actual)
			return a == b, nil
		}
		if a, ok := actual.(bool); ok {
			b, err := cast.ToBoolE(lit)
			if err != nil {
				return false, fmt.Errorf("%w: %q as bool", ErrIncomparable, lit)
			}
			return a == b, nil
		}
		return Stringify(actual) == lit, nil
	}

	if isNumber(literal) {
		if _, ok := actual.(bool); ok {
			return false, fmt.Errorf("%w: bool against number", ErrIncomparable)
		}
		a, err := cast.ToFloat64E(actual)
		if err != nil {
			return false, fmt.Errorf("%w: %v as number", ErrIncomparable, actual)
		}
		b, _ := cast.ToFloat64E(literal)
		return a == b, nil
	}

	return reflect.DeepEqual(actual, literal), nil
}

// contains checks substring containment, or membership when actual is a list.
func contains(actual, literal any) (bool, error) {
	// A missing literal would match every string as the empty substring.
	if actual == nil || literal == nil {
		return false, nil
	}
	if items, ok := actual.([]any); ok {
		for _, item := range items {
			if eq, err := equals(item, literal); err == nil && eq {
				return true, nil
			}
		}
		return false, nil
	}
	return strings.Contains(Stringify(actual), Stringify(literal)), nil
}

func numericPair(actual, literal any) (float64, float64, error) {
	a, err := toNumber(actual)
	if err != nil {
		return 0, 0, err
	}
	b, err := toNumber(literal)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func toNumber(v any) (float64, error) {
	switch v.(type) {
	case nil, bool:
		return 0, fmt.Errorf("%w: %v is not numeric", ErrIncomparable, v)
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, fmt.Errorf("%w: empty string is not numeric", ErrIncomparable)
		}
		v = s
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v is not numeric", ErrIncomparable, v)
	}
	return f, nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
