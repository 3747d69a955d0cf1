package segmentation

import (
	"time"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/records"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// ago returns a timestamp d days and one hour before testNow.
func ago(d int) domain.Timestamp {
	return domain.NewTimestamp(testNow.Add(-time.Duration(d)*24*time.Hour - time.Hour))
}

// fixtureStore holds three customers:
//
//	C1 premium, three premium-fuel purchases in the last 90 days, six events
//	C2 regular, two recent premium-fuel purchases and one outside the window
//	C3 premium, no transactions at all
func fixtureStore() *records.Store {
	customers := []domain.CustomerProfile{
		{CustomerID: "C1", City: "İstanbul", Age: 30, Gender: "F", HasApp: true, EmailOptedIn: true, Segment: domain.TierPremium},
		{CustomerID: "C2", City: "Ankara", Age: 40, Gender: "M", Segment: domain.TierRegular},
		{CustomerID: "C3", City: "İstanbul", Age: 50, Gender: "F", EmailOptedIn: true, Segment: domain.TierPremium},
	}
	txs := []domain.Transaction{
		{TransactionID: "T1", CustomerID: "C1", Timestamp: ago(5), IsPremiumFuel: true, TotalAmount: 100},
		{TransactionID: "T2", CustomerID: "C1", Timestamp: ago(10), IsPremiumFuel: true, TotalAmount: 100, MarketAmount: 25.5},
		{TransactionID: "T3", CustomerID: "C1", Timestamp: ago(20), IsPremiumFuel: true, TotalAmount: 100},
		{TransactionID: "T4", CustomerID: "C2", Timestamp: ago(15), IsPremiumFuel: true, TotalAmount: 2000, FuelType: "diesel"},
		{TransactionID: "T5", CustomerID: "C2", Timestamp: ago(30), IsPremiumFuel: true, TotalAmount: 2000, FuelType: "diesel"},
		{TransactionID: "T6", CustomerID: "C2", Timestamp: ago(120), IsPremiumFuel: true, TotalAmount: 2000, FuelType: "diesel"},
	}
	var events []domain.Event
	for i := 0; i < 6; i++ {
		events = append(events, domain.Event{
			EventID:    "E" + string(rune('1'+i)),
			CustomerID: "C1",
			Timestamp:  ago(i + 1),
			EventType:  "app_open",
			Channel:    "app",
		})
	}
	events = append(events, domain.Event{EventID: "E9", CustomerID: "C2", Timestamp: ago(2), EventType: "email_click", Channel: "email"})
	return records.New(customers, txs, events)
}

func fixtureEngine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewEngine(records.NewHolder(fixtureStore()), opts...)
}

func memberIDs(res *Result) []string {
	ids := make([]string, 0, len(res.Customers))
	for _, c := range res.Customers {
		ids = append(ids, c.CustomerID)
	}
	return ids
}
