package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/heyitswin/zipsea-sub001/internal/apierror"
	"github.com/heyitswin/zipsea-sub001/model"
)

// GetActiveCruisesByLine returns active, future-sailing cruises for a line
// with sailing dates inside the given horizon, ordered by ship then date so
// the downloader's ship grouping is stable.
func (d Datasource) GetActiveCruisesByLine(ctx context.Context, lineID int, horizon time.Time) ([]model.Cruise, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, line_id, ship_id, name, voyage_code, alternate_code, sailing_date, nights, sea_days
		FROM cruises
		WHERE line_id = $1
		  AND is_active = TRUE
		  AND sailing_date >= CURRENT_DATE
		  AND sailing_date <= $2
		ORDER BY ship_id, sailing_date
	`, lineID, horizon)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve cruises", err)
	}
	defer rows.Close()

	cruises := []model.Cruise{}

	for rows.Next() {
		cruise := model.Cruise{}
		var name, voyageCode, alternateCode sql.NullString
		var nights, seaDays sql.NullInt64
		err = rows.Scan(&cruise.ID, &cruise.LineID, &cruise.ShipID, &name, &voyageCode, &alternateCode, &cruise.SailingDate, &nights, &seaDays)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan cruise data", err)
		}
		cruise.Name = name.String
		cruise.VoyageCode = voyageCode.String
		cruise.AlternateCode = alternateCode.String
		cruise.Nights = int(nights.Int64)
		cruise.SeaDays = int(seaDays.Int64)
		cruises = append(cruises, cruise)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over cruises", err)
	}

	return cruises, nil
}

func (d Datasource) GetCruiseByID(ctx context.Context, id int) (*model.Cruise, error) {
	cruise := model.Cruise{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, line_id, ship_id, name, sailing_date, nights, cheapest_price, updated_at
		FROM cruises
		WHERE id = $1
	`, id)

	var name sql.NullString
	var nights sql.NullInt64
	var cheapest decimal.NullDecimal
	err := row.Scan(&cruise.ID, &cruise.LineID, &cruise.ShipID, &name, &cruise.SailingDate, &nights, &cheapest, &cruise.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Cruise not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve cruise", err)
	}
	cruise.Name = name.String
	cruise.Nights = int(nights.Int64)
	if cheapest.Valid {
		cruise.CheapestPrice = &cheapest.Decimal
	}

	return &cruise, nil
}

func (d Datasource) GetShipByID(ctx context.Context, id int) (*model.Ship, error) {
	ship := model.Ship{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, line_id, name, code, is_active
		FROM ships
		WHERE id = $1
	`, id)

	var code sql.NullString
	err := row.Scan(&ship.ID, &ship.LineID, &ship.Name, &code, &ship.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Ship not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ship", err)
	}
	ship.Code = code.String

	return &ship, nil
}

func (d Datasource) GetPortByID(ctx context.Context, id int) (*model.Port, error) {
	port := model.Port{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, name, code, is_active
		FROM ports
		WHERE id = $1
	`, id)

	var code sql.NullString
	err := row.Scan(&port.ID, &port.Name, &code, &port.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Port not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve port", err)
	}
	port.Code = code.String

	return &port, nil
}

func (d Datasource) GetCruiseLineByID(ctx context.Context, id int) (*model.CruiseLine, error) {
	line := model.CruiseLine{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, name, code, is_active
		FROM cruise_lines
		WHERE id = $1
	`, id)

	var code sql.NullString
	err := row.Scan(&line.ID, &line.Name, &code, &line.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Cruise line not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve cruise line", err)
	}
	line.Code = code.String

	return &line, nil
}

// UpsertCruise inserts the cruise or updates its mutable fields. Identity
// fields (id, line_id) are never rewritten on conflict. The returned flag
// reports whether a new row was created.
func (d Datasource) UpsertCruise(ctx context.Context, cruise *model.Cruise) (bool, error) {
	row := d.Conn.QueryRowContext(ctx, `
		INSERT INTO cruises (id, line_id, ship_id, name, voyage_code, alternate_code, sailing_date, return_date,
			nights, sea_days, embark_port_id, disembark_port_id, port_ids, region_ids, show_cruise, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, TRUE, NOW())
		ON CONFLICT (id) DO UPDATE SET
			ship_id = EXCLUDED.ship_id,
			name = EXCLUDED.name,
			voyage_code = EXCLUDED.voyage_code,
			alternate_code = EXCLUDED.alternate_code,
			sailing_date = EXCLUDED.sailing_date,
			return_date = EXCLUDED.return_date,
			nights = EXCLUDED.nights,
			sea_days = EXCLUDED.sea_days,
			embark_port_id = EXCLUDED.embark_port_id,
			disembark_port_id = EXCLUDED.disembark_port_id,
			port_ids = EXCLUDED.port_ids,
			region_ids = EXCLUDED.region_ids,
			show_cruise = EXCLUDED.show_cruise,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`, cruise.ID, cruise.LineID, cruise.ShipID, cruise.Name, cruise.VoyageCode, cruise.AlternateCode,
		cruise.SailingDate, cruise.ReturnDate, cruise.Nights, cruise.SeaDays,
		cruise.EmbarkPortID, cruise.DisembarkPortID, cruise.PortIDs, cruise.RegionIDs, cruise.ShowCruise)

	var inserted bool
	if err := row.Scan(&inserted); err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "foreign_key_violation" {
			return false, apierror.NewAPIError(apierror.ErrConstraintViolation, "Cruise references a missing entity", err)
		}
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert cruise", err)
	}

	return inserted, nil
}
