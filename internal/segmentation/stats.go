package segmentation

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/records"
)

// Bucket is one value of a distribution and how many members carry it.
type Bucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Stats summarises the members of one segment run.
type Stats struct {
	Count             int      `json:"count"`
	Percentage        float64  `json:"percentage"`
	Cities            []Bucket `json:"cities"`
	AvgAge            float64  `json:"avg_age"`
	GenderSplit       []Bucket `json:"gender_split"`
	HasAppPct         float64  `json:"has_app_pct"`
	TotalTransactions int      `json:"total_transactions"`
	TotalRevenue      float64  `json:"total_revenue"`
}

// MarshalJSON renders an empty segment as {"count":0}.
func (s Stats) MarshalJSON() ([]byte, error) {
	if s.Count == 0 {
		return []byte(`{"count":0}`), nil
	}
	type plain Stats
	return json.Marshal(plain(s))
}

// ComputeStats derives statistics for members drawn from store. Transaction
// totals cover every transaction of the members, not a window.
func ComputeStats(store *records.Store, members []domain.CustomerProfile) Stats {
	if len(members) == 0 {
		return Stats{}
	}

	var (
		ageSum  float64
		withApp int
		txCount int
		revenue float64
	)
	cities := make(map[string]int)
	genders := make(map[string]int)
	for _, c := range members {
		cities[c.City]++
		genders[c.Gender]++
		ageSum += float64(c.Age)
		if c.HasApp {
			withApp++
		}
		for _, tx := range store.Transactions(c.CustomerID) {
			txCount++
			revenue += tx.TotalAmount
		}
	}

	n := float64(len(members))
	st := Stats{
		Count:             len(members),
		Cities:            distribution(cities),
		AvgAge:            round(ageSum/n, 1),
		GenderSplit:       distribution(genders),
		HasAppPct:         round(float64(withApp)/n*100, 1),
		TotalTransactions: txCount,
		TotalRevenue:      round(revenue, 2),
	}
	if pop := store.Len(); pop > 0 {
		st.Percentage = round(n/float64(pop)*100, 1)
	}
	return st
}

// distribution orders buckets by count descending, then by value.
func distribution(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for v, n := range counts {
		out = append(out, Bucket{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
