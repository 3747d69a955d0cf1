package records

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/cdp-activation/internal/domain"
)

func ts(s string) domain.Timestamp {
	t, err := domain.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleStore() *Store {
	customers := []domain.CustomerProfile{
		{CustomerID: "C1", City: "İstanbul"},
		{CustomerID: "C2", City: "Ankara"},
	}
	txs := []domain.Transaction{
		{TransactionID: "T3", CustomerID: "C1", Timestamp: ts("2024-03-01 10:00:00")},
		{TransactionID: "T1", CustomerID: "C1", Timestamp: ts("2024-01-01 10:00:00")},
		{TransactionID: "T2", CustomerID: "C2", Timestamp: ts("2024-02-01 10:00:00")},
		{TransactionID: "T9", CustomerID: "ORPHAN", Timestamp: ts("2024-02-01 10:00:00")},
	}
	events := []domain.Event{
		{EventID: "E1", CustomerID: "C2", Timestamp: ts("2024-02-02 10:00:00"), EventType: "app_open"},
	}
	return New(customers, txs, events)
}

func TestIndexByCustomer_GroupsAndOrders(t *testing.T) {
	s := sampleStore()

	c1 := s.Transactions("C1")
	require.Len(t, c1, 2)
	assert.Equal(t, "T1", c1[0].TransactionID)
	assert.Equal(t, "T3", c1[1].TransactionID)

	assert.Len(t, s.Transactions("C2"), 1)
	assert.Empty(t, s.Transactions("C3"))
	assert.Len(t, s.Events("C2"), 1)
	assert.Empty(t, s.Events("C1"))
}

func TestStore_OrphanRecordsIndexedButNotInPopulation(t *testing.T) {
	s := sampleStore()
	assert.Len(t, s.Transactions("ORPHAN"), 1)
	_, ok := s.Customer("ORPHAN")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 4, s.Counts().Transactions)
}

func TestStore_CustomerLookupKeepsOrder(t *testing.T) {
	s := sampleStore()
	c, ok := s.Customer("C2")
	require.True(t, ok)
	assert.Equal(t, "Ankara", c.City)
	assert.Equal(t, "C1", s.Customers()[0].CustomerID)
}

func TestHolder_EmptyIsUnavailable(t *testing.T) {
	h := NewHolder(nil)
	_, err := h.Load()
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestHolder_ReplaceSwapsWholeSnapshot(t *testing.T) {
	first := sampleStore()
	h := NewHolder(first)

	inFlight, err := h.Load()
	require.NoError(t, err)

	second := New([]domain.CustomerProfile{{CustomerID: "C9"}}, nil, nil)
	prev := h.Replace(second)
	assert.Same(t, first, prev)

	// readers holding the old snapshot still see it unchanged
	assert.Equal(t, 2, inFlight.Len())
	cur, err := h.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Len())
}

func TestHolder_ConcurrentReadersDuringReplace(t *testing.T) {
	h := NewHolder(sampleStore())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s, err := h.Load()
				if assert.NoError(t, err) {
					n := s.Len()
					assert.True(t, n == 2 || n == 1)
				}
			}
		}()
	}
	for j := 0; j < 50; j++ {
		if j%2 == 0 {
			h.Replace(New([]domain.CustomerProfile{{CustomerID: "X"}}, nil, nil))
		} else {
			h.Replace(sampleStore())
		}
	}
	wg.Wait()
}

func writeSnapshot(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		CustomersObject: `[
			{"customer_id":"PO100000","first_name":"Ayşe","email":"ayse@example.com","phone":"05321234567","city":"İstanbul","age":34,"gender":"F","has_app":true,"email_opted_in":true,"loyalty_card":true,"segment":"premium"},
			{"customer_id":"PO100001","first_name":"Mehmet","city":"Ankara","age":51,"gender":"M","segment":"regular"}
		]`,
		TransactionsObject: `[
			{"transaction_id":"TX1","customer_id":"PO100000","timestamp":"2024-05-01 09:15:00","total_amount":1500.5,"is_premium_fuel":true,"market_amount":120}
		]`,
		EventsObject: `[
			{"event_id":"EV1","customer_id":"PO100000","timestamp":"2024-05-02 20:00:00","event_type":"app_open","platform":"app"}
		]`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func TestDirLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir)

	l, err := NewDirLoader(dir)
	require.NoError(t, err)
	s, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	c, ok := s.Customer("PO100000")
	require.True(t, ok)
	assert.Equal(t, domain.TierPremium, c.Segment)
	assert.True(t, c.HasLoyaltyCard)

	txs := s.Transactions("PO100000")
	require.Len(t, txs, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC), txs[0].Timestamp.Time)
	assert.True(t, txs[0].HasMarket())
	assert.Equal(t, "app", s.Events("PO100000")[0].Channel)
}

func TestDirLoader_MissingFileIsDataUnavailable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CustomersObject), []byte(`[]`), 0o644))

	l, err := NewDirLoader(dir)
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestDirLoader_CorruptFileIsDataUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, EventsObject), []byte(`{not json`), 0o644))

	l, err := NewDirLoader(dir)
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestReload_KeepsCurrentOnFailure(t *testing.T) {
	h := NewHolder(sampleStore())
	l, err := NewDirLoader(t.TempDir())
	require.NoError(t, err)

	_, err = Reload(context.Background(), h, l)
	assert.ErrorIs(t, err, ErrDataUnavailable)

	s, err := h.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}
