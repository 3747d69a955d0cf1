// Package records holds the materialized customer, transaction and event
// collections and the per-customer indexes the segmentation engine reads.
//
// A Store is immutable once built. Reloading produces a fresh Store which is
// published through a Holder; readers that already hold the previous Store
// keep a consistent view.
package records

import (
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ignite/cdp-activation/internal/domain"
)

// ErrDataUnavailable is returned when the backing collections cannot be
// loaded. It is fatal for the caller and never retried.
var ErrDataUnavailable = errors.New("records: data unavailable")

// ErrNotFound is returned when a customer id has no profile.
var ErrNotFound = errors.New("records: not found")

// IndexByCustomer groups records by customer id, each group ordered by
// timestamp. The input slice is not modified.
func IndexByCustomer[T any](items []T, customerID func(T) string, ts func(T) time.Time) map[string][]T {
	idx := make(map[string][]T)
	for _, it := range items {
		id := customerID(it)
		idx[id] = append(idx[id], it)
	}
	for _, group := range idx {
		sort.SliceStable(group, func(i, j int) bool {
			return ts(group[i]).Before(ts(group[j]))
		})
	}
	return idx
}

// Counts summarizes a snapshot.
type Counts struct {
	Customers    int       `json:"customers"`
	Transactions int       `json:"transactions"`
	Events       int       `json:"events"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// Store is one immutable snapshot of the three collections plus indexes.
// Records whose customer id has no profile are indexed but never visited.
type Store struct {
	customers []domain.CustomerProfile
	byID      map[string]int
	txIndex   map[string][]domain.Transaction
	evIndex   map[string][]domain.Event
	counts    Counts
}

// New builds a Store and all its indexes.
func New(customers []domain.CustomerProfile, transactions []domain.Transaction, events []domain.Event) *Store {
	byID := make(map[string]int, len(customers))
	for i, c := range customers {
		byID[c.CustomerID] = i
	}
	return &Store{
		customers: customers,
		byID:      byID,
		txIndex: IndexByCustomer(transactions,
			func(t domain.Transaction) string { return t.CustomerID },
			func(t domain.Transaction) time.Time { return t.Timestamp.Time }),
		evIndex: IndexByCustomer(events,
			func(e domain.Event) string { return e.CustomerID },
			func(e domain.Event) time.Time { return e.Timestamp.Time }),
		counts: Counts{
			Customers:    len(customers),
			Transactions: len(transactions),
			Events:       len(events),
			LoadedAt:     time.Now().UTC(),
		},
	}
}

// Customers returns the population in load order. Callers must not modify it.
func (s *Store) Customers() []domain.CustomerProfile { return s.customers }

// Len is the population size.
func (s *Store) Len() int { return len(s.customers) }

// Customer looks up one profile.
func (s *Store) Customer(id string) (domain.CustomerProfile, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.CustomerProfile{}, false
	}
	return s.customers[i], true
}

// Transactions returns a customer's transactions ordered by timestamp.
func (s *Store) Transactions(customerID string) []domain.Transaction {
	return s.txIndex[customerID]
}

// Events returns a customer's events ordered by timestamp.
func (s *Store) Events(customerID string) []domain.Event {
	return s.evIndex[customerID]
}

// Counts reports collection sizes and load time.
func (s *Store) Counts() Counts { return s.counts }

// Holder publishes the current Store. Replace swaps the whole snapshot.
type Holder struct {
	current atomic.Pointer[Store]
}

// NewHolder starts with s, which may be nil.
func NewHolder(s *Store) *Holder {
	h := &Holder{}
	if s != nil {
		h.current.Store(s)
	}
	return h
}

// Load returns the current snapshot or ErrDataUnavailable if none is loaded.
func (h *Holder) Load() (*Store, error) {
	s := h.current.Load()
	if s == nil {
		return nil, ErrDataUnavailable
	}
	return s, nil
}

// Replace publishes s and returns the previous snapshot.
func (h *Holder) Replace(s *Store) *Store {
	return h.current.Swap(s)
}
