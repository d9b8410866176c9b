package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/pitta999/orderportal/internal/platform/firestore"
	"github.com/pitta999/orderportal/internal/repositories"
)

// Registry hands out the Firestore repositories plus the blob store they are paired with.
type Registry struct {
	provider  *pfirestore.Provider
	carts     *CartRepository
	orders    *OrderRepository
	overrides *PriceOverrideRepository
	catalog   *CatalogRepository
	customers *CustomerRepository
	blobs     repositories.BlobStore
	closers   []func() error
}

// RegistryOption customises the registry.
type RegistryOption func(*Registry)

// WithCloser registers an extra resource (e.g. the storage client) released by Close.
func WithCloser(fn func() error) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.closers = append(r.closers, fn)
		}
	}
}

// NewRegistry builds every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider, blobs repositories.BlobStore, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}
	if blobs == nil {
		return nil, errors.New("registry: blob store is required")
	}
	reg := &Registry{provider: provider, blobs: blobs}
	var err error
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.overrides, err = NewPriceOverrideRepository(provider); err != nil {
		return nil, err
	}
	if reg.catalog, err = NewCatalogRepository(provider); err != nil {
		return nil, err
	}
	if reg.customers, err = NewCustomerRepository(provider); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}
	return reg, nil
}

func (r *Registry) Carts() repositories.CartRepository                   { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository                 { return r.orders }
func (r *Registry) PriceOverrides() repositories.PriceOverrideRepository { return r.overrides }
func (r *Registry) Catalog() repositories.CatalogRepository              { return r.catalog }
func (r *Registry) Customers() repositories.CustomerRepository           { return r.customers }
func (r *Registry) Blobs() repositories.BlobStore                        { return r.blobs }

// Close releases the Firestore client and any registered closers.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	if err := r.provider.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close firestore: %w", err))
	}
	for _, closer := range r.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ repositories.Registry = (*Registry)(nil)
