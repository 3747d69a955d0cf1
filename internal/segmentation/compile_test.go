package segmentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_ResolvesFieldKinds(t *testing.T) {
	seg, err := Compile(Definition{
		Key: "mixed",
		Conditions: []Condition{
			{Field: "city", Operator: "==", Value: "İstanbul"},
			{Field: "tx_count", Operator: "gte", Value: 2, Days: 30},
			{Field: "event_count", Operator: ">", Value: 0, EventType: "app_open"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []FieldKind{ProfileField, TransactionAggregate, EventAggregate}, seg.Kinds())
	assert.Equal(t, LogicAnd, seg.Definition().Logic, "logic defaults to AND")
}

func TestCompile_LogicIsCaseInsensitive(t *testing.T) {
	seg, err := Compile(Definition{
		Logic:      "or",
		Conditions: []Condition{{Field: "has_app", Operator: "==", Value: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, LogicOr, seg.Definition().Logic)
}

func TestCompile_Rejections(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want error
	}{
		{
			name: "unknown field",
			def:  Definition{Conditions: []Condition{{Field: "shoe_size", Operator: "==", Value: 42}}},
			want: ErrUnknownField,
		},
		{
			name: "unknown operator",
			def:  Definition{Conditions: []Condition{{Field: "age", Operator: "~=", Value: 42}}},
			want: ErrUnsupportedOperator,
		},
		{
			name: "contains on number",
			def:  Definition{Conditions: []Condition{{Field: "age", Operator: "contains", Value: "4"}}},
			want: ErrUnsupportedOperator,
		},
		{
			name: "ordering on boolean",
			def:  Definition{Conditions: []Condition{{Field: "has_app", Operator: ">", Value: true}}},
			want: ErrUnsupportedOperator,
		},
		{
			name: "in without list",
			def:  Definition{Conditions: []Condition{{Field: "segment", Operator: "in", Value: "premium"}}},
			want: ErrInvalidValue,
		},
		{
			name: "aggregate with text value",
			def:  Definition{Conditions: []Condition{{Field: "tx_count", Operator: ">=", Value: "three"}}},
			want: ErrInvalidValue,
		},
		{
			name: "missing value",
			def:  Definition{Conditions: []Condition{{Field: "city", Operator: "=="}}},
			want: ErrInvalidValue,
		},
		{
			name: "window on profile field",
			def:  Definition{Conditions: []Condition{{Field: "city", Operator: "==", Value: "Ankara", Days: 30}}},
			want: ErrInvalidValue,
		},
		{
			name: "negative window",
			def:  Definition{Conditions: []Condition{{Field: "tx_count", Operator: ">", Value: 1, Days: -1}}},
			want: ErrInvalidValue,
		},
		{
			name: "unknown transaction filter",
			def: Definition{Conditions: []Condition{
				{Field: "tx_count", Operator: ">", Value: 1, Filter: &Filter{Field: "colour", Value: "red"}},
			}},
			want: ErrUnknownField,
		},
		{
			name: "event filter on transaction aggregate",
			def:  Definition{Conditions: []Condition{{Field: "tx_count", Operator: ">", Value: 1, EventType: "app_open"}}},
			want: ErrInvalidValue,
		},
		{
			name: "bad logic",
			def:  Definition{Logic: "XOR", Conditions: []Condition{{Field: "has_app", Operator: "==", Value: true}}},
			want: ErrInvalidLogic,
		},
		{
			name: "no conditions",
			def:  Definition{Key: "empty"},
			want: ErrNoConditions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, err := Compile(tt.def)
			assert.Nil(t, seg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompile_ReportsEveryProblem(t *testing.T) {
	_, err := Compile(Definition{
		Logic: "XOR",
		Conditions: []Condition{
			{Field: "shoe_size", Operator: "==", Value: 42},
			{Field: "age", Operator: "contains", Value: "4"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidLogic)
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.ErrorIs(t, err, ErrUnsupportedOperator)
	assert.Contains(t, err.Error(), "condition 0 (shoe_size)")
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile(Definition{Key: "bad"}) })
}

func TestPredefined_AllCompile(t *testing.T) {
	defs := Predefined()
	require.Len(t, defs, 7)
	for _, def := range defs {
		_, err := Compile(def)
		assert.NoError(t, err, def.Key)
	}
}

func TestFields_ListsEveryKind(t *testing.T) {
	fields := Fields()
	seen := make(map[string]FieldInfo)
	for _, f := range fields {
		seen[f.Name] = f
	}
	assert.Equal(t, ProfileField, fields[0].Kind)
	assert.Equal(t, TransactionAggregate, seen["tx_last_days"].Kind)
	assert.Contains(t, seen["tx_count"].FilterFields, "is_premium_fuel")
	assert.Contains(t, seen["event_count"].FilterFields, "event_type")
	assert.NotContains(t, seen["age"].Operators, OpContains)
	assert.Contains(t, seen["city"].Operators, OpContains)
}
