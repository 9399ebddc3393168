package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sokodata/pricefeed/internal/store"
)

// Store is the persistence surface the resolver needs. Implemented by
// *store.Queries; tests substitute an in-memory fake.
type Store interface {
	CropByName(ctx context.Context, name string) (store.Crop, error)
	CreateCrop(ctx context.Context, arg store.CreateCropParams) (uuid.UUID, error)
	RegionByName(ctx context.Context, name string) (store.Region, error)
	CreateRegion(ctx context.Context, arg store.CreateRegionParams) (uuid.UUID, error)
	MarketByName(ctx context.Context, regionID uuid.UUID, name string) (store.Market, error)
	CreateMarket(ctx context.Context, arg store.CreateMarketParams) (uuid.UUID, error)
}

// Resolver maps crop/region/market names to stable identifiers, creating
// reference rows the first time a name is seen. Lookups are exact but
// case-insensitive; there is no fuzzy matching.
//
// Creates treat a lost unique-constraint race as "another batch just
// created it" and re-fetch instead of failing the row, so concurrent
// batches can safely grow the catalog.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver backed by the given store. When the
// store is bound to a transaction, created reference rows commit or roll
// back together with the facts that depend on them.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// ResolveCrop returns the crop row with the given name, creating an
// active crop with a classified category and default unit on first
// sight. Returning the full row lets callers use the catalog's unit and
// category rather than rederiving them from the raw name.
func (r *Resolver) ResolveCrop(ctx context.Context, name string) (store.Crop, error) {
	name = strings.TrimSpace(name)

	crop, err := r.store.CropByName(ctx, name)
	if err == nil {
		return crop, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Crop{}, fmt.Errorf("look up crop %q: %w", name, err)
	}

	category := Classify(name)
	unit := DefaultUnit(category, name)
	id, err := r.store.CreateCrop(ctx, store.CreateCropParams{
		Name:     name,
		Category: string(category),
		Unit:     unit,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		crop, err = r.store.CropByName(ctx, name)
		if err != nil {
			return store.Crop{}, fmt.Errorf("re-fetch crop %q: %w", name, err)
		}
		return crop, nil
	}
	if err != nil {
		return store.Crop{}, fmt.Errorf("create crop %q: %w", name, err)
	}
	return store.Crop{ID: id, Name: name, Category: string(category), Unit: unit, IsActive: true}, nil
}

// ResolveRegion returns the id of the region with the given name,
// creating an active region with a derived code on first sight.
func (r *Resolver) ResolveRegion(ctx context.Context, name string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)

	region, err := r.store.RegionByName(ctx, name)
	if err == nil {
		return region.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("look up region %q: %w", name, err)
	}

	id, err := r.store.CreateRegion(ctx, store.CreateRegionParams{
		Name: name,
		Code: RegionCode(name),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		region, err = r.store.RegionByName(ctx, name)
		if err != nil {
			return uuid.Nil, fmt.Errorf("re-fetch region %q: %w", name, err)
		}
		return region.ID, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("create region %q: %w", name, err)
	}
	return id, nil
}

// ResolveMarket returns the id of the named market within a region,
// creating it on first sight. Markets are optional: an empty name
// resolves to nil without touching storage.
func (r *Resolver) ResolveMarket(ctx context.Context, name string, regionID uuid.UUID) (*uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	market, err := r.store.MarketByName(ctx, regionID, name)
	if err == nil {
		return &market.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up market %q: %w", name, err)
	}

	id, err := r.store.CreateMarket(ctx, store.CreateMarketParams{
		Name:     name,
		RegionID: regionID,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		market, err = r.store.MarketByName(ctx, regionID, name)
		if err != nil {
			return nil, fmt.Errorf("re-fetch market %q: %w", name, err)
		}
		return &market.ID, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create market %q: %w", name, err)
	}
	return &id, nil
}

// RegionCode derives the stable short code for a region name: uppercase
// with runs of whitespace collapsed to underscores ("Central Kenya" →
// "CENTRAL_KENYA").
func RegionCode(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), "_"))
}
