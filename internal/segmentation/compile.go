package segmentation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/cdp-activation/internal/domain"
)

var (
	// ErrUnknownField is returned for a condition or filter field that no
	// profile attribute or aggregate resolves.
	ErrUnknownField = errors.New("segmentation: unknown field")
	// ErrUnsupportedOperator is returned for an unknown operator or one that
	// cannot apply to the field's type.
	ErrUnsupportedOperator = errors.New("segmentation: unsupported operator")
	// ErrInvalidValue is returned when a condition's value or modifiers do
	// not fit its field and operator.
	ErrInvalidValue = errors.New("segmentation: invalid condition value")
	// ErrInvalidLogic is returned for a combinator other than AND or OR.
	ErrInvalidLogic = errors.New("segmentation: invalid logic")
	// ErrNoConditions is returned for a definition without conditions.
	ErrNoConditions = errors.New("segmentation: definition has no conditions")
)

// compiledCondition is a Condition resolved against the field catalog.
// Exactly one of profile (ProfileField) or agg (aggregates) is meaningful.
type compiledCondition struct {
	field string
	kind  FieldKind
	op    Operator
	value any

	profile func(domain.CustomerProfile) any

	agg      aggregate
	window   time.Duration
	txFilter func(domain.Transaction) bool
	evFilter func(domain.Event) bool
}

// Segment is a compiled Definition, ready to evaluate.
type Segment struct {
	def        Definition
	logic      Logic
	conditions []compiledCondition
}

// Definition returns the source definition.
func (s *Segment) Definition() Definition { return s.def }

// Key is the catalog key of the segment.
func (s *Segment) Key() string { return s.def.Key }

// Kinds lists the resolved kind of each condition, in order.
func (s *Segment) Kinds() []FieldKind {
	kinds := make([]FieldKind, len(s.conditions))
	for i, c := range s.conditions {
		kinds[i] = c.kind
	}
	return kinds
}

// Compile resolves every condition once. All problems are reported together;
// use errors.Is against the package sentinels to classify them.
func Compile(def Definition) (*Segment, error) {
	logic := Logic(strings.ToUpper(strings.TrimSpace(string(def.Logic))))
	if logic == "" {
		logic = LogicAnd
	}

	var errs []error
	if logic != LogicAnd && logic != LogicOr {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogic, def.Logic))
	}
	if len(def.Conditions) == 0 {
		errs = append(errs, ErrNoConditions)
	}

	compiled := make([]compiledCondition, 0, len(def.Conditions))
	for i, cond := range def.Conditions {
		cc, err := compileCondition(cond)
		if err != nil {
			errs = append(errs, fmt.Errorf("condition %d (%s): %w", i, cond.Field, err))
			continue
		}
		compiled = append(compiled, cc)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	def.Logic = logic
	return &Segment{def: def, logic: logic, conditions: compiled}, nil
}

// MustCompile panics on an invalid definition. For built-in catalogs only.
func MustCompile(def Definition) *Segment {
	s, err := Compile(def)
	if err != nil {
		panic(fmt.Sprintf("segmentation: compiling %q: %v", def.Key, err))
	}
	return s
}

func compileCondition(cond Condition) (compiledCondition, error) {
	op, err := ParseOperator(cond.Operator)
	if err != nil {
		return compiledCondition{}, err
	}
	cc := compiledCondition{
		field: cond.Field,
		op:    op,
		value: normalizeValue(cond.Value),
	}

	if acc, ok := profileFields[cond.Field]; ok {
		if cond.Days != 0 || cond.Filter != nil || cond.EventType != "" {
			return cc, fmt.Errorf("%w: days and filter apply only to aggregate fields", ErrInvalidValue)
		}
		if err := checkOperand(op, acc.typ, cc.value); err != nil {
			return cc, err
		}
		cc.kind = ProfileField
		cc.profile = acc.get
		return cc, nil
	}

	af, ok := aggregateFields[cond.Field]
	if !ok {
		return cc, fmt.Errorf("%w: %q", ErrUnknownField, cond.Field)
	}
	if err := checkOperand(op, FieldNumber, cc.value); err != nil {
		return cc, err
	}
	if cond.Days < 0 {
		return cc, fmt.Errorf("%w: days must not be negative", ErrInvalidValue)
	}
	cc.kind = af.kind
	cc.agg = af.agg
	cc.window = time.Duration(cond.Days) * 24 * time.Hour

	switch af.kind {
	case TransactionAggregate:
		if cond.EventType != "" {
			return cc, fmt.Errorf("%w: event_type applies only to event fields", ErrInvalidValue)
		}
		if cond.Filter != nil {
			cc.txFilter, err = compileTransactionFilter(*cond.Filter)
			if err != nil {
				return cc, err
			}
		}
	case EventAggregate:
		var filters []func(domain.Event) bool
		if cond.Filter != nil {
			f, err := compileEventFilter(*cond.Filter)
			if err != nil {
				return cc, err
			}
			filters = append(filters, f)
		}
		if cond.EventType != "" {
			f, _ := compileEventFilter(Filter{Field: "event_type", Value: cond.EventType})
			filters = append(filters, f)
		}
		cc.evFilter = allEvents(filters)
	}
	return cc, nil
}

// checkOperand validates the right-hand side against the field type.
func checkOperand(op Operator, typ FieldType, value any) error {
	switch {
	case op == OpIn:
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("%w: %s requires a list", ErrInvalidValue, op)
		}
	case op == OpContains:
		if typ != FieldString {
			return fmt.Errorf("%w: %s needs a text field, got %s", ErrUnsupportedOperator, op, typ)
		}
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %s requires text", ErrInvalidValue, op)
		}
	case op.ordering():
		if typ == FieldBoolean {
			return fmt.Errorf("%w: %s on a boolean field", ErrUnsupportedOperator, op)
		}
		if typ == FieldNumber && !isNumber(value) {
			return fmt.Errorf("%w: %s requires a number", ErrInvalidValue, op)
		}
	case value == nil:
		return fmt.Errorf("%w: missing value", ErrInvalidValue)
	case typ == FieldNumber && !isNumber(value):
		return fmt.Errorf("%w: %s requires a number", ErrInvalidValue, op)
	}
	return nil
}

func compileTransactionFilter(f Filter) (func(domain.Transaction) bool, error) {
	want := normalizeValue(f.Value)
	// market_amount holds the basket total; a boolean asks whether one exists
	if b, ok := want.(bool); ok && f.Field == "market_amount" {
		return func(t domain.Transaction) bool { return t.HasMarket() == b }, nil
	}
	get, ok := transactionFilterFields[f.Field]
	if !ok {
		return nil, fmt.Errorf("%w: transaction filter %q", ErrUnknownField, f.Field)
	}
	return func(t domain.Transaction) bool { return equal(normalizeValue(get(t)), want) }, nil
}

func compileEventFilter(f Filter) (func(domain.Event) bool, error) {
	get, ok := eventFilterFields[f.Field]
	if !ok {
		return nil, fmt.Errorf("%w: event filter %q", ErrUnknownField, f.Field)
	}
	want := normalizeValue(f.Value)
	return func(e domain.Event) bool { return equal(normalizeValue(get(e)), want) }, nil
}

func allEvents(filters []func(domain.Event) bool) func(domain.Event) bool {
	if len(filters) == 0 {
		return nil
	}
	return func(e domain.Event) bool {
		for _, f := range filters {
			if !f(e) {
				return false
			}
		}
		return true
	}
}
