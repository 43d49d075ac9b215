package receipts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"spendwise/internal/log"
	"spendwise/internal/metrics"
)

// Fallback tries a primary store and degrades to the local store when the
// primary fails. With a nil primary it is a plain local store that still
// records metrics.
type Fallback struct {
	primary Store
	local   *LocalStore
	metrics *metrics.Metrics
}

// NewFallback wraps primary with local as the fallback.
func NewFallback(primary Store, local *LocalStore, m *metrics.Metrics) *Fallback {
	return &Fallback{primary: primary, local: local, metrics: m}
}

// Backend reports the configured primary backend.
func (f *Fallback) Backend() string {
	if f.primary == nil {
		return f.local.Backend()
	}
	return f.primary.Backend()
}

// Local returns the local store used for fallback writes.
func (f *Fallback) Local() *LocalStore {
	return f.local
}

// Store implements Store.
func (f *Fallback) Store(ctx context.Context, r io.Reader, key string) (string, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentReceipts)

	if f.primary == nil {
		return f.storeLocal(ctx, r, key, metrics.OutcomeSuccess)
	}

	// The body is buffered so it can be replayed against the local store.
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: read upload: %v", ErrStorage, err)
	}

	ref, err := f.primary.Store(ctx, bytes.NewReader(data), key)
	if err == nil {
		f.metrics.ReceiptStored(f.primary.Backend(), metrics.OutcomeSuccess)
		return ref, nil
	}

	f.metrics.ReceiptStored(f.primary.Backend(), metrics.OutcomeFailure)
	logger.Error("Remote receipt storage failed, falling back to local storage",
		log.FieldBackend, f.primary.Backend(),
		log.FieldKey, key,
		log.FieldError, err)

	return f.storeLocal(ctx, bytes.NewReader(data), key, metrics.OutcomeFallback)
}

func (f *Fallback) storeLocal(ctx context.Context, r io.Reader, key, outcome string) (string, error) {
	ref, err := f.local.Store(ctx, r, key)
	if err != nil {
		f.metrics.ReceiptStored(f.local.Backend(), metrics.OutcomeFailure)
		return "", err
	}
	f.metrics.ReceiptStored(f.local.Backend(), outcome)
	return ref, nil
}
