// Package segmentation evaluates declarative segment definitions against a
// records snapshot, producing the matching customers and summary statistics.
package segmentation

import (
	"fmt"
	"strings"
)

// ==========================================
// OPERATORS
// ==========================================

// Operator represents a comparison operator
type Operator string

const (
	OpEq       Operator = "=="
	OpNe       Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

var operatorAliases = map[string]Operator{
	"==":         OpEq,
	"eq":         OpEq,
	"equals":     OpEq,
	"!=":         OpNe,
	"ne":         OpNe,
	"not_equals": OpNe,
	">":          OpGt,
	"gt":         OpGt,
	">=":         OpGte,
	"gte":        OpGte,
	"<":          OpLt,
	"lt":         OpLt,
	"<=":         OpLte,
	"lte":        OpLte,
	"in":         OpIn,
	"contains":   OpContains,
}

// ParseOperator accepts the symbolic form and the word aliases (eq, gte, ...).
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedOperator, s)
}

// ordering reports whether op needs ordered operands.
func (op Operator) ordering() bool {
	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// OperatorMetadata contains info about an operator
type OperatorMetadata struct {
	Operator        Operator    `json:"operator"`
	Label           string      `json:"label"`
	ApplicableTypes []FieldType `json:"applicable_types"`
	RequiresArray   bool        `json:"requires_array"`
}

// GetOperatorMetadata returns metadata for all operators
func GetOperatorMetadata() []OperatorMetadata {
	all := []FieldType{FieldString, FieldNumber, FieldBoolean}
	ordered := []FieldType{FieldString, FieldNumber}
	return []OperatorMetadata{
		{OpEq, "Equals", all, false},
		{OpNe, "Does not equal", all, false},
		{OpGt, "Greater than", ordered, false},
		{OpGte, "Greater than or equal", ordered, false},
		{OpLt, "Less than", ordered, false},
		{OpLte, "Less than or equal", ordered, false},
		{OpIn, "Is one of", all, true},
		{OpContains, "Contains", []FieldType{FieldString}, false},
	}
}

// GetAvailableOperators returns operators available for a field type
func GetAvailableOperators(fieldType FieldType) []Operator {
	var operators []Operator
	for _, meta := range GetOperatorMetadata() {
		for _, ft := range meta.ApplicableTypes {
			if ft == fieldType {
				operators = append(operators, meta.Operator)
				break
			}
		}
	}
	return operators
}

// ==========================================
// FIELD TYPES
// ==========================================

// FieldType represents the data type of a field
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// FieldKind says where a condition field's value comes from.
type FieldKind int

const (
	// ProfileField reads an attribute of the customer profile.
	ProfileField FieldKind = iota + 1
	// TransactionAggregate summarizes the customer's transactions.
	TransactionAggregate
	// EventAggregate summarizes the customer's events.
	EventAggregate
)

func (k FieldKind) String() string {
	switch k {
	case ProfileField:
		return "profile"
	case TransactionAggregate:
		return "transaction_aggregate"
	case EventAggregate:
		return "event_aggregate"
	}
	return "unknown"
}

func (k FieldKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ==========================================
// LOGIC OPERATORS
// ==========================================

// Logic combines condition outcomes.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ==========================================
// SEGMENT DEFINITIONS
// ==========================================

// Filter restricts the records an aggregate is computed over to those whose
// Field equals Value.
type Filter struct {
	Field string `json:"field" yaml:"field"`
	Value any    `json:"value" yaml:"value"`
}

// Condition is one predicate of a segment, as written by users.
type Condition struct {
	Field    string  `json:"field" yaml:"field"`
	Operator string  `json:"operator" yaml:"operator"`
	Value    any     `json:"value" yaml:"value"`
	Days     int     `json:"days,omitempty" yaml:"days,omitempty"`
	Filter   *Filter `json:"filter,omitempty" yaml:"filter,omitempty"`
	// EventType is shorthand for Filter{Field: "event_type"} on event fields.
	EventType string `json:"event_type,omitempty" yaml:"event_type,omitempty"`
}

// Definition is a named segment: conditions combined with AND or OR.
type Definition struct {
	Key         string      `json:"key" yaml:"key"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
	Logic       Logic       `json:"logic" yaml:"logic"`
}
