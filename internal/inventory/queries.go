package inventory

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiln-ops/kiln/internal/shared"
)

// ItemDetail bundles an item with its full history for the detail endpoint.
type ItemDetail struct {
	Item        Item
	Adjustments []Adjustment
	Movements   []Movement
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, itemID int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		if err == ErrRowNotFound {
			return Item{}, errItemNotFound(itemID)
		}
		return Item{}, err
	}
	return item, nil
}

// ItemDetail loads an item plus its ledger and movement history. The two
// histories are fetched concurrently.
func (s *Service) ItemDetail(ctx context.Context, itemID int64) (ItemDetail, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return ItemDetail{}, err
	}
	detail := ItemDetail{Item: item}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		detail.Adjustments, err = s.repo.ListAdjustments(gctx, itemID, 200)
		return err
	})
	g.Go(func() error {
		var err error
		detail.Movements, err = s.repo.ListMovements(gctx, itemID, 200)
		return err
	})
	if err := g.Wait(); err != nil {
		return ItemDetail{}, err
	}
	return detail, nil
}

// ListItems returns a filtered item page plus the total row count.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter, page shared.Pagination) ([]Item, int, error) {
	return s.repo.ListItems(ctx, filter, page.PerPage, page.Offset())
}

// ItemsByBatch lists every stock position produced by a batch.
func (s *Service) ItemsByBatch(ctx context.Context, batchID int64) ([]Item, error) {
	return s.repo.ListItemsByBatch(ctx, batchID)
}

// MaterialAvailability sums uncommitted stock for one material.
func (s *Service) MaterialAvailability(ctx context.Context, materialID int64) (int64, error) {
	return s.repo.AvailableForMaterial(ctx, materialID)
}

// ProductAvailability lists available finished-goods items for one product.
func (s *Service) ProductAvailability(ctx context.Context, productID int64) ([]Item, error) {
	return s.repo.AvailableByProduct(ctx, productID)
}

// RecentActivity returns ledger entries from the last day, served from the
// cache when one is configured.
func (s *Service) RecentActivity(ctx context.Context) ([]Adjustment, error) {
	load := func(ctx context.Context) ([]Adjustment, error) {
		return s.repo.RecentAdjustments(ctx, time.Now().Add(-24*time.Hour), 100)
	}
	if s.activity == nil {
		return load(ctx)
	}
	return s.activity.Get(ctx, load)
}

// LedgerDrift reports the difference between an item's on-hand snapshot and
// the sum of its ledger entries. Zero means the books balance.
func (s *Service) LedgerDrift(ctx context.Context, itemID int64) (int64, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	sum, err := s.repo.SumAdjustments(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return item.OnHand - sum, nil
}
