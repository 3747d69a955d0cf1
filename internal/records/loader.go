package records

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
	"github.com/ignite/cdp-activation/internal/storage"
)

// Object names of a snapshot in an ObjectStore.
const (
	CustomersObject    = "customers.json"
	TransactionsObject = "transactions.json"
	EventsObject       = "events.json"
)

// Loader produces a fresh Store. Failures wrap ErrDataUnavailable.
type Loader interface {
	Load(ctx context.Context) (*Store, error)
}

// ObjectLoader reads the three JSON collections from an ObjectStore, which
// may be a local directory or an S3 prefix.
type ObjectLoader struct {
	objects storage.ObjectStore
}

// NewObjectLoader reads snapshots from objects.
func NewObjectLoader(objects storage.ObjectStore) *ObjectLoader {
	return &ObjectLoader{objects: objects}
}

// NewDirLoader reads snapshots from a local directory.
func NewDirLoader(dir string) (*ObjectLoader, error) {
	local, err := storage.NewLocalStore(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	return NewObjectLoader(local), nil
}

// Load reads and indexes all three collections.
func (l *ObjectLoader) Load(ctx context.Context) (*Store, error) {
	var (
		customers    []domain.CustomerProfile
		transactions []domain.Transaction
		events       []domain.Event
	)
	if err := l.readJSON(ctx, CustomersObject, &customers); err != nil {
		return nil, err
	}
	if err := l.readJSON(ctx, TransactionsObject, &transactions); err != nil {
		return nil, err
	}
	if err := l.readJSON(ctx, EventsObject, &events); err != nil {
		return nil, err
	}

	s := New(customers, transactions, events)
	logger.Info("records loaded",
		"source", l.objects.Location(""),
		"customers", len(customers),
		"transactions", len(transactions),
		"events", len(events))
	return s, nil
}

func (l *ObjectLoader) readJSON(ctx context.Context, key string, target interface{}) error {
	data, err := l.objects.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrDataUnavailable, key, err)
	}
	return nil
}

// Reload loads a fresh snapshot and publishes it. On failure the current
// snapshot stays in place.
func Reload(ctx context.Context, h *Holder, l Loader) (*Store, error) {
	s, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	h.Replace(s)
	return s, nil
}
