package segmentation

import (
	"sort"

	"github.com/ignite/cdp-activation/internal/domain"
)

// NeverDays is the days-since-last-transaction of a customer with no
// qualifying transactions. It satisfies any "> N" recency threshold.
const NeverDays = 9999

type profileAccessor struct {
	typ FieldType
	get func(domain.CustomerProfile) any
}

var profileFields = map[string]profileAccessor{
	"customer_id":          {FieldString, func(c domain.CustomerProfile) any { return c.CustomerID }},
	"first_name":           {FieldString, func(c domain.CustomerProfile) any { return c.FirstName }},
	"last_name":            {FieldString, func(c domain.CustomerProfile) any { return c.LastName }},
	"email":                {FieldString, func(c domain.CustomerProfile) any { return c.Email }},
	"phone":                {FieldString, func(c domain.CustomerProfile) any { return c.Phone }},
	"city":                 {FieldString, func(c domain.CustomerProfile) any { return c.City }},
	"district":             {FieldString, func(c domain.CustomerProfile) any { return c.District }},
	"age":                  {FieldNumber, func(c domain.CustomerProfile) any { return float64(c.Age) }},
	"gender":               {FieldString, func(c domain.CustomerProfile) any { return c.Gender }},
	"registration_date":    {FieldString, func(c domain.CustomerProfile) any { return c.RegistrationDate }},
	"has_app":              {FieldBoolean, func(c domain.CustomerProfile) any { return c.HasApp }},
	"email_opted_in":       {FieldBoolean, func(c domain.CustomerProfile) any { return c.EmailOptedIn }},
	"sms_opted_in":         {FieldBoolean, func(c domain.CustomerProfile) any { return c.SMSOptedIn }},
	"loyalty_card":         {FieldBoolean, func(c domain.CustomerProfile) any { return c.HasLoyaltyCard }},
	"has_loyalty_card":     {FieldBoolean, func(c domain.CustomerProfile) any { return c.HasLoyaltyCard }},
	"segment":              {FieldString, func(c domain.CustomerProfile) any { return string(c.Segment) }},
	"avg_monthly_visits":   {FieldNumber, func(c domain.CustomerProfile) any { return float64(c.AvgMonthlyVisits) }},
	"prefers_premium_fuel": {FieldBoolean, func(c domain.CustomerProfile) any { return c.PrefersPremiumFuel }},
}

type aggregate int

const (
	aggCount aggregate = iota
	aggTotalAmount
	aggAvgAmount
	aggLastDays
)

type aggregateField struct {
	kind FieldKind
	agg  aggregate
}

var aggregateFields = map[string]aggregateField{
	"tx_count":        {TransactionAggregate, aggCount},
	"tx_total_amount": {TransactionAggregate, aggTotalAmount},
	"tx_avg_amount":   {TransactionAggregate, aggAvgAmount},
	"tx_last_days":    {TransactionAggregate, aggLastDays},
	"event_count":     {EventAggregate, aggCount},
}

var transactionFilterFields = map[string]func(domain.Transaction) any{
	"is_premium_fuel": func(t domain.Transaction) any { return t.IsPremiumFuel },
	"market_amount":   func(t domain.Transaction) any { return t.MarketAmount },
	"fuel_type":       func(t domain.Transaction) any { return t.FuelType },
	"station_id":      func(t domain.Transaction) any { return t.StationID },
	"city":            func(t domain.Transaction) any { return t.City },
	"payment_method":  func(t domain.Transaction) any { return t.PaymentMethod },
}

var eventFilterFields = map[string]func(domain.Event) any{
	"event_type": func(e domain.Event) any { return e.EventType },
	"channel":    func(e domain.Event) any { return e.Channel },
	"platform":   func(e domain.Event) any { return e.Channel },
	"device":     func(e domain.Event) any { return e.Device },
}

// FieldInfo describes one condition field for builders and validation UIs.
type FieldInfo struct {
	Name         string     `json:"name"`
	Kind         FieldKind  `json:"kind"`
	Type         FieldType  `json:"type"`
	Operators    []Operator `json:"operators"`
	FilterFields []string   `json:"filter_fields,omitempty"`
}

// Fields lists every field Compile accepts, profile fields first.
func Fields() []FieldInfo {
	out := make([]FieldInfo, 0, len(profileFields)+len(aggregateFields))
	for name, acc := range profileFields {
		out = append(out, FieldInfo{
			Name:      name,
			Kind:      ProfileField,
			Type:      acc.typ,
			Operators: GetAvailableOperators(acc.typ),
		})
	}
	txFilters := sortedKeys(transactionFilterFields)
	evFilters := sortedKeys(eventFilterFields)
	for name, af := range aggregateFields {
		info := FieldInfo{
			Name: name,
			Kind: af.kind,
			Type: FieldNumber,
			// contains never applies to a number
			Operators: []Operator{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn},
		}
		if af.kind == TransactionAggregate {
			info.FilterFields = txFilters
		} else {
			info.FilterFields = evFilters
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
