package routing

import (
	"strings"

	"github.com/nuxeo/docroute/types"
)

// Operator defines the comparison applied by a transition guard.
type Operator string

const (
	// OperatorEqual matches when subject and comparison are equal
	OperatorEqual Operator = "equal"
	// OperatorNotEqual matches when subject and comparison differ
	OperatorNotEqual Operator = "not_equal"
	// OperatorSmaller matches when subject sorts before comparison
	OperatorSmaller Operator = "smaller"
	// OperatorGreater matches when subject sorts after comparison
	OperatorGreater Operator = "greater"
)

// Valid reports whether op is one of the four supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OperatorEqual, OperatorNotEqual, OperatorSmaller, OperatorGreater:
		return true
	}
	return false
}

// EvaluateCondition compares subject against comparison using op and
// returns the boolean result. Both values are strings and the comparison
// is byte-lexicographic, never numeric: "10" is smaller than "9". Callers
// with numeric or date subjects must pre-format them into a
// lexicographically ordered representation. This matches the historical
// routing behavior and is kept deliberately.
//
// The function is pure: identical arguments always yield identical
// results, and there are no side effects.
func EvaluateCondition(subject string, op Operator, comparison string) (bool, error) {
	cmp := strings.Compare(subject, comparison)
	switch op {
	case OperatorEqual:
		return cmp == 0, nil
	case OperatorNotEqual:
		return cmp != 0, nil
	case OperatorSmaller:
		return cmp < 0, nil
	case OperatorGreater:
		return cmp > 0, nil
	default:
		return false, types.NewErrorf(types.ErrInvalidOperator, "unknown operator %q", string(op))
	}
}
