package segmentation

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSegment is returned when a catalog has no segment for a key.
var ErrUnknownSegment = errors.New("segmentation: unknown segment")

// Predefined returns the built-in segment definitions in display order.
func Predefined() []Definition {
	return []Definition{
		{
			Key:         "premium_fuel_lovers",
			Name:        "Premium Fuel Lovers",
			Description: "Bought premium fuel 3+ times in the last 90 days",
			Conditions: []Condition{
				{Field: "tx_count", Operator: ">=", Value: 3, Days: 90, Filter: &Filter{Field: "is_premium_fuel", Value: true}},
			},
			Logic: LogicAnd,
		},
		{
			Key:         "high_value_customers",
			Name:        "High Value Customers",
			Description: "Spent 5000 TL or more in the last 90 days",
			Conditions: []Condition{
				{Field: "tx_total_amount", Operator: ">=", Value: 5000, Days: 90},
			},
			Logic: LogicAnd,
		},
		{
			Key:         "app_active_users",
			Name:        "Active App Users",
			Description: "Have the app and produced 5+ events in the last 30 days",
			Conditions: []Condition{
				{Field: "has_app", Operator: "==", Value: true},
				{Field: "event_count", Operator: ">=", Value: 5, Days: 30},
			},
			Logic: LogicAnd,
		},
		{
			Key:         "churn_risk",
			Name:        "Churn Risk",
			Description: "Regular or premium customers with no visit in the last 60 days",
			Conditions: []Condition{
				{Field: "segment", Operator: "in", Value: []any{"premium", "regular"}},
				{Field: "tx_last_days", Operator: ">", Value: 60},
			},
			Logic: LogicAnd,
		},
		{
			Key:         "istanbul_premium",
			Name:        "Istanbul Premium",
			Description: "Premium tier customers living in İstanbul",
			Conditions: []Condition{
				{Field: "city", Operator: "==", Value: "İstanbul"},
				{Field: "segment", Operator: "==", Value: "premium"},
			},
			Logic: LogicAnd,
		},
		{
			Key:         "market_shoppers",
			Name:        "Market Shoppers",
			Description: "Shopped at the market 3+ times in the last 30 days",
			Conditions: []Condition{
				{Field: "tx_count", Operator: ">=", Value: 3, Days: 30, Filter: &Filter{Field: "market_amount", Value: true}},
			},
			Logic: LogicAnd,
		},
		{
			Key:         "email_reachable",
			Name:        "Email Reachable",
			Description: "Premium tier customers who opted in to email",
			Conditions: []Condition{
				{Field: "email_opted_in", Operator: "==", Value: true},
				{Field: "segment", Operator: "==", Value: "premium"},
			},
			Logic: LogicAnd,
		},
	}
}

// Catalog is a concurrency-safe, ordered set of compiled segments.
type Catalog struct {
	mu       sync.RWMutex
	order    []string
	segments map[string]*Segment
}

// NewCatalog compiles defs into a catalog. A later definition with the same
// key replaces the earlier one in place.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{segments: make(map[string]*Segment)}
	for _, def := range defs {
		if err := c.Add(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultCatalog holds the predefined segments.
func DefaultCatalog() *Catalog {
	c := &Catalog{segments: make(map[string]*Segment)}
	for _, def := range Predefined() {
		c.put(MustCompile(def))
	}
	return c
}

// Add compiles and registers def.
func (c *Catalog) Add(def Definition) error {
	if def.Key == "" {
		return fmt.Errorf("%w: segment key is required", ErrInvalidValue)
	}
	seg, err := Compile(def)
	if err != nil {
		return fmt.Errorf("segment %s: %w", def.Key, err)
	}
	c.put(seg)
	return nil
}

func (c *Catalog) put(seg *Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.segments[seg.Key()]; !exists {
		c.order = append(c.order, seg.Key())
	}
	c.segments[seg.Key()] = seg
}

// Get returns the segment registered under key.
func (c *Catalog) Get(key string) (*Segment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seg, ok := c.segments[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSegment, key)
	}
	return seg, nil
}

// List returns all segments in registration order.
func (c *Catalog) List() []*Segment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Segment, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.segments[k])
	}
	return out
}

type definitionsFile struct {
	Segments []Definition `yaml:"segments"`
}

// LoadDefinitions reads a YAML (or JSON) file of the form
//
//	segments:
//	  - key: ...
//	    conditions: [...]
//
// and merges it over the predefined catalog.
func LoadDefinitions(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading segment definitions: %w", err)
	}
	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing segment definitions: %w", err)
	}

	c := DefaultCatalog()
	for _, def := range f.Segments {
		if err := c.Add(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}
