package segmentation

import (
	"math"
	"time"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/records"
)

// Evaluator decides conditions for single customers against one snapshot at
// one instant. It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	store *records.Store
	now   time.Time
}

// NewEvaluator binds a snapshot and the reference time for day windows.
func NewEvaluator(store *records.Store, now time.Time) *Evaluator {
	return &Evaluator{store: store, now: now}
}

// Matches combines every condition of seg for customer c.
func (ev *Evaluator) Matches(seg *Segment, c domain.CustomerProfile) bool {
	if seg.logic == LogicOr {
		for i := range seg.conditions {
			if ev.evaluate(&seg.conditions[i], c) {
				return true
			}
		}
		return false
	}
	for i := range seg.conditions {
		if !ev.evaluate(&seg.conditions[i], c) {
			return false
		}
	}
	return true
}

// ConditionResults reports each condition's outcome for c, in order.
func (ev *Evaluator) ConditionResults(seg *Segment, c domain.CustomerProfile) []bool {
	out := make([]bool, len(seg.conditions))
	for i := range seg.conditions {
		out[i] = ev.evaluate(&seg.conditions[i], c)
	}
	return out
}

func (ev *Evaluator) evaluate(cc *compiledCondition, c domain.CustomerProfile) bool {
	switch cc.kind {
	case ProfileField:
		return Compare(cc.profile(c), cc.op, cc.value)
	case TransactionAggregate:
		return ev.evaluateTransactions(cc, c.CustomerID)
	case EventAggregate:
		return ev.evaluateEvents(cc, c.CustomerID)
	}
	return false
}

func (ev *Evaluator) cutoff(cc *compiledCondition) (time.Time, bool) {
	if cc.window <= 0 {
		return time.Time{}, false
	}
	return ev.now.Add(-cc.window), true
}

func (ev *Evaluator) evaluateTransactions(cc *compiledCondition, customerID string) bool {
	cutoff, windowed := ev.cutoff(cc)

	var (
		count int
		total float64
		last  time.Time
	)
	for _, tx := range ev.store.Transactions(customerID) {
		if windowed && tx.Timestamp.Before(cutoff) {
			continue
		}
		if cc.txFilter != nil && !cc.txFilter(tx) {
			continue
		}
		count++
		total += tx.TotalAmount
		if count == 1 || tx.Timestamp.After(last) {
			last = tx.Timestamp.Time
		}
	}

	var actual float64
	switch cc.agg {
	case aggCount:
		actual = float64(count)
	case aggTotalAmount:
		actual = total
	case aggAvgAmount:
		if count == 0 {
			return false
		}
		actual = total / float64(count)
	case aggLastDays:
		if count == 0 {
			actual = NeverDays
		} else {
			actual = math.Floor(ev.now.Sub(last).Hours() / 24)
		}
	}
	return Compare(actual, cc.op, cc.value)
}

func (ev *Evaluator) evaluateEvents(cc *compiledCondition, customerID string) bool {
	cutoff, windowed := ev.cutoff(cc)

	count := 0
	for _, e := range ev.store.Events(customerID) {
		if windowed && e.Timestamp.Before(cutoff) {
			continue
		}
		if cc.evFilter != nil && !cc.evFilter(e) {
			continue
		}
		count++
	}
	return Compare(float64(count), cc.op, cc.value)
}
