package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	// ApplicableForChannelAndCountry returns the ids of warehouses assigned
	// to the channel whose shipping zones cover the country.
	ApplicableForChannelAndCountry(ctx context.Context, tx pgx.Tx, channelID uint64, countryCode string) ([]uint64, error)

	// ForShippingMethod returns warehouses whose shipping zone carries the
	// given shipping method, ordered by id.
	ForShippingMethod(ctx context.Context, tx pgx.Tx, shippingMethodID uint64) ([]*models.Warehouse, error)

	// ForCountry returns warehouses whose shipping zones cover the country,
	// ordered by id.
	ForCountry(ctx context.Context, tx pgx.Tx, countryCode string) ([]*models.Warehouse, error)
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

func (r *repository) ApplicableForChannelAndCountry(ctx context.Context, tx pgx.Tx, channelID uint64, countryCode string) ([]uint64, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT w.id
		FROM warehouses w
		JOIN channel_warehouses cw ON cw.warehouse_id = w.id
		JOIN warehouse_shipping_zones wsz ON wsz.warehouse_id = w.id
		JOIN shipping_zone_countries szc ON szc.shipping_zone_id = wsz.shipping_zone_id
		WHERE cw.channel_id = $1 AND szc.country_code = $2
		ORDER BY w.id`,
		int64(channelID), countryCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get applicable warehouses: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) ForShippingMethod(ctx context.Context, tx pgx.Tx, shippingMethodID uint64) ([]*models.Warehouse, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT w.id, w.slug, w.name
		FROM warehouses w
		JOIN warehouse_shipping_zones wsz ON wsz.warehouse_id = w.id
		JOIN shipping_methods sm ON sm.shipping_zone_id = wsz.shipping_zone_id
		WHERE sm.id = $1
		ORDER BY w.id`,
		int64(shippingMethodID))
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouses for shipping method: %w", err)
	}
	return scanWarehouses(rows)
}

func (r *repository) ForCountry(ctx context.Context, tx pgx.Tx, countryCode string) ([]*models.Warehouse, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT w.id, w.slug, w.name
		FROM warehouses w
		JOIN warehouse_shipping_zones wsz ON wsz.warehouse_id = w.id
		JOIN shipping_zone_countries szc ON szc.shipping_zone_id = wsz.shipping_zone_id
		WHERE szc.country_code = $1
		ORDER BY w.id`,
		countryCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get warehouses for country: %w", err)
	}
	return scanWarehouses(rows)
}

func scanWarehouses(rows pgx.Rows) ([]*models.Warehouse, error) {
	defer rows.Close()

	var warehouses []*models.Warehouse
	for rows.Next() {
		var wh models.Warehouse
		if err := rows.Scan(&wh.ID, &wh.Slug, &wh.Name); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, &wh)
	}
	return warehouses, rows.Err()
}
