package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/heyitswin/zipsea-sub001/internal/apierror"
	"github.com/heyitswin/zipsea-sub001/model"
)

// ReplacePricing deletes every pricing row for the cruise and inserts the
// fresh set inside one transaction, so readers never observe a half-replaced
// price list. Returns the number of rows inserted.
func (d Datasource) ReplacePricing(ctx context.Context, cruiseID int, pricingRows []model.PricingRow) (int, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin pricing transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM cruise_pricing WHERE cruise_id = $1`, cruiseID)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete existing pricing", err)
	}

	inserted := 0
	for _, row := range pricingRows {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cruise_pricing (cruise_id, rate_code, cabin_code, occupancy_code, cabin_type,
				base_price, adult_price, child_price, taxes, ncf, gratuity, fuel, total_price, is_available, inventory)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, cruiseID, row.RateCode, row.CabinCode, row.OccupancyCode, row.CabinType,
			row.BasePrice, row.AdultPrice, row.ChildPrice, row.Taxes, row.NCF, row.Gratuity, row.Fuel,
			row.TotalPrice, row.IsAvailable, row.Inventory)
		if err != nil {
			pqErr, ok := err.(*pq.Error)
			if ok {
				switch pqErr.Code.Name() {
				case "foreign_key_violation":
					return 0, apierror.NewAPIError(apierror.ErrConstraintViolation, "Pricing references a missing cruise", err)
				case "unique_violation":
					// Duplicate rate/cabin/occupancy leaves in one payload;
					// keep the first and move on.
					continue
				}
			}
			return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert pricing row", err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit pricing transaction", err)
	}

	return inserted, nil
}

func (d Datasource) GetCheapestPricing(ctx context.Context, cruiseID int) (*model.CheapestPricing, error) {
	pricing := model.CheapestPricing{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT cruise_id, cheapest_price, cabin_class, interior_price, oceanview_price, balcony_price, suite_price, updated_at
		FROM cheapest_pricing
		WHERE cruise_id = $1
	`, cruiseID)

	var cabinClass sql.NullString
	err := row.Scan(&pricing.CruiseID, &pricing.CheapestPrice, &cabinClass,
		&pricing.Inside, &pricing.Outside, &pricing.Balcony, &pricing.Suite, &pricing.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Cheapest pricing not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve cheapest pricing", err)
	}
	pricing.CabinClass = cabinClass.String

	return &pricing, nil
}

// UpsertCheapestPricing writes the per-cruise aggregate row and mirrors the
// minimum onto the cruise record for fast-path listing reads.
func (d Datasource) UpsertCheapestPricing(ctx context.Context, pricing model.CheapestPricing) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO cheapest_pricing (cruise_id, cheapest_price, cabin_class, interior_price, oceanview_price, balcony_price, suite_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (cruise_id) DO UPDATE SET
			cheapest_price = EXCLUDED.cheapest_price,
			cabin_class = EXCLUDED.cabin_class,
			interior_price = EXCLUDED.interior_price,
			oceanview_price = EXCLUDED.oceanview_price,
			balcony_price = EXCLUDED.balcony_price,
			suite_price = EXCLUDED.suite_price,
			updated_at = NOW()
	`, pricing.CruiseID, pricing.CheapestPrice, pricing.CabinClass,
		pricing.Inside, pricing.Outside, pricing.Balcony, pricing.Suite)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "foreign_key_violation" {
			return apierror.NewAPIError(apierror.ErrConstraintViolation, "Cheapest pricing references a missing cruise", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert cheapest pricing", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		UPDATE cruises SET cheapest_price = $1, updated_at = NOW() WHERE id = $2
	`, pricing.CheapestPrice, pricing.CruiseID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mirror cheapest price onto cruise", err)
	}

	return nil
}
