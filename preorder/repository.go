package preorder

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
)

var _ Repository = (*repository)(nil)

// AllocationDetail joins a preorder allocation with the order context needed
// to resolve a concrete warehouse during preorder finalization.
type AllocationDetail struct {
	Allocation       *models.PreorderAllocation
	OrderLine        *models.OrderLine
	ShippingMethodID *uint64
	CountryCode      string
}

type Repository interface {
	// GetListingsForUpdate locks the channel listings of the given variants,
	// ordered ascending by row id. Listings play the role stocks play for
	// regular allocation, so they follow the same lock discipline.
	GetListingsForUpdate(ctx context.Context, tx pgx.Tx, variantIDs []uint64) ([]*models.VariantChannelListing, error)

	// AllocatedByListing aggregates preorder-allocated quantity per listing.
	AllocatedByListing(ctx context.Context, tx pgx.Tx, listingIDs []uint64) (map[uint64]int, error)

	BulkCreate(ctx context.Context, tx pgx.Tx, allocations []*models.PreorderAllocation) error

	// GetDetailsForVariantForUpdate locks and returns every outstanding
	// preorder allocation of a variant with its order context.
	GetDetailsForVariantForUpdate(ctx context.Context, tx pgx.Tx, variantID uint64) ([]*AllocationDetail, error)

	DeleteByIDs(ctx context.Context, tx pgx.Tx, allocationIDs []uint64) error

	// ClearPreorderFields resets the variant's preorder flags and every
	// listing's per-channel threshold.
	ClearPreorderFields(ctx context.Context, tx pgx.Tx, variantID uint64) error
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

func (r *repository) GetListingsForUpdate(ctx context.Context, tx pgx.Tx, variantIDs []uint64) ([]*models.VariantChannelListing, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, variant_id, channel_id, preorder_quantity_threshold
		FROM variant_channel_listings
		WHERE variant_id = ANY($1)
		ORDER BY id
		FOR UPDATE`,
		int64Slice(variantIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to lock channel listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.VariantChannelListing
	for rows.Next() {
		var listing models.VariantChannelListing
		if err = rows.Scan(&listing.ID, &listing.VariantID, &listing.ChannelID, &listing.PreorderQuantityThreshold); err != nil {
			return nil, err
		}
		listings = append(listings, &listing)
	}
	return listings, rows.Err()
}

func (r *repository) AllocatedByListing(ctx context.Context, tx pgx.Tx, listingIDs []uint64) (map[uint64]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT channel_listing_id, COALESCE(SUM(quantity), 0)
		FROM preorder_allocations
		WHERE channel_listing_id = ANY($1)
		GROUP BY channel_listing_id`,
		int64Slice(listingIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate preorder allocations: %w", err)
	}
	defer rows.Close()

	totals := make(map[uint64]int, len(listingIDs))
	for rows.Next() {
		var listingID uint64
		var total int
		if err = rows.Scan(&listingID, &total); err != nil {
			return nil, err
		}
		totals[listingID] = total
	}
	return totals, rows.Err()
}

func (r *repository) BulkCreate(ctx context.Context, tx pgx.Tx, allocations []*models.PreorderAllocation) error {
	if len(allocations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, alloc := range allocations {
		batch.Queue(`
			INSERT INTO preorder_allocations (order_line_id, channel_listing_id, quantity)
			VALUES ($1, $2, $3)`,
			int64(alloc.OrderLineID), int64(alloc.ChannelListingID), alloc.Quantity)
	}

	results := tx.SendBatch(ctx, batch)
	for range allocations {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to execute batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		r.logger.Error("failed to close batch", zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) GetDetailsForVariantForUpdate(ctx context.Context, tx pgx.Tx, variantID uint64) ([]*AllocationDetail, error) {
	rows, err := tx.Query(ctx, `
		SELECT pa.id, pa.order_line_id, pa.channel_listing_id, pa.quantity,
		       ol.id, ol.order_id, ol.variant_id, ol.quantity,
		       o.shipping_method_id, o.shipping_country_code
		FROM preorder_allocations pa
		JOIN variant_channel_listings vcl ON vcl.id = pa.channel_listing_id
		JOIN order_lines ol ON ol.id = pa.order_line_id
		JOIN orders o ON o.id = ol.order_id
		WHERE vcl.variant_id = $1
		ORDER BY pa.id
		FOR UPDATE OF pa`,
		int64(variantID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock preorder allocations: %w", err)
	}
	defer rows.Close()

	var details []*AllocationDetail
	for rows.Next() {
		var (
			alloc            models.PreorderAllocation
			line             models.OrderLine
			shippingMethodID *int64
			countryCode      string
		)
		if err = rows.Scan(&alloc.ID, &alloc.OrderLineID, &alloc.ChannelListingID, &alloc.Quantity,
			&line.ID, &line.OrderID, &line.VariantID, &line.Quantity,
			&shippingMethodID, &countryCode); err != nil {
			return nil, err
		}

		detail := &AllocationDetail{
			Allocation:  &alloc,
			OrderLine:   &line,
			CountryCode: countryCode,
		}
		if shippingMethodID != nil {
			id := uint64(*shippingMethodID)
			detail.ShippingMethodID = &id
		}
		details = append(details, detail)
	}
	return details, rows.Err()
}

func (r *repository) DeleteByIDs(ctx context.Context, tx pgx.Tx, allocationIDs []uint64) error {
	if len(allocationIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM preorder_allocations WHERE id = ANY($1)`,
		int64Slice(allocationIDs)); err != nil {
		return fmt.Errorf("failed to delete preorder allocations: %w", err)
	}
	return nil
}

func (r *repository) ClearPreorderFields(ctx context.Context, tx pgx.Tx, variantID uint64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE product_variants
		SET is_preorder = false, preorder_global_threshold = NULL, preorder_end_date = NULL
		WHERE id = $1`,
		int64(variantID)); err != nil {
		return fmt.Errorf("failed to clear variant preorder fields: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE variant_channel_listings
		SET preorder_quantity_threshold = NULL
		WHERE variant_id = $1`,
		int64(variantID)); err != nil {
		return fmt.Errorf("failed to clear listing thresholds: %w", err)
	}
	return nil
}

func int64Slice(ids []uint64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
