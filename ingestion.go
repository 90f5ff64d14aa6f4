/*
Copyright 2025 Zipsea Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package zipsea

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/heyitswin/zipsea-sub001/database"
	"github.com/heyitswin/zipsea-sub001/internal/apierror"
	"github.com/heyitswin/zipsea-sub001/internal/cache"
	"github.com/heyitswin/zipsea-sub001/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
)

// priceTolerance is half a cent. Aggregate moves inside it are refresh
// noise, not a real price change.
var priceTolerance = decimal.New(5, -3)

// IngestionProcessor applies downloaded pricing documents to the store.
// Each cruise is applied independently; one bad document never poisons
// the batch. The upsert, pricing replace and aggregate steps are
// deliberately separate statements, a crash between them leaves data
// the next webhook run overwrites wholesale.
type IngestionProcessor struct {
	ds    database.IDataSource
	cache cache.Cache
}

func NewIngestionProcessor(ds database.IDataSource, cch cache.Cache) *IngestionProcessor {
	return &IngestionProcessor{ds: ds, cache: cch}
}

// Apply ingests every document in docs for the given internal line id
// and returns per-batch counts.
func (p *IngestionProcessor) Apply(ctx context.Context, lineID int, docs map[int]*model.PricingDocument) model.IngestionResult {
	var result model.IngestionResult

	if _, err := p.ds.GetCruiseLineByID(ctx, lineID); err != nil {
		reason := fmt.Sprintf("cruise line %d not found", lineID)
		if !apierror.Is(err, apierror.ErrNotFound) {
			reason = fmt.Sprintf("cruise line %d lookup: %v", lineID, err)
		}
		for cruiseID := range docs {
			result.Failed++
			result.ConstraintViolations++
			result.Errors = append(result.Errors, model.CruiseError{
				CruiseID: cruiseID, Type: "constraint_violation", Message: reason,
			})
		}
		return result
	}

	cruiseIDs := make([]int, 0, len(docs))
	for id := range docs {
		cruiseIDs = append(cruiseIDs, id)
	}
	sort.Ints(cruiseIDs)

	for _, cruiseID := range cruiseIDs {
		if err := p.applyCruise(ctx, lineID, cruiseID, docs[cruiseID], &result); err != nil {
			result.Failed++
			errType := "ingestion_error"
			if apierror.Is(err, apierror.ErrConstraintViolation) {
				errType = "constraint_violation"
				result.ConstraintViolations++
			}
			result.Errors = append(result.Errors, model.CruiseError{
				CruiseID: cruiseID, Type: errType, Message: err.Error(),
			})
			logrus.WithError(err).WithField("cruise_id", cruiseID).Warn("cruise ingestion failed")
		}
	}
	return result
}

func (p *IngestionProcessor) applyCruise(ctx context.Context, lineID, cruiseID int, doc *model.PricingDocument, result *model.IngestionResult) error {
	ship, err := p.ds.GetShipByID(ctx, doc.ShipID.Int())
	if err != nil {
		if apierror.Is(err, apierror.ErrNotFound) {
			return apierror.NewAPIError(apierror.ErrConstraintViolation,
				fmt.Sprintf("ship %d not found", doc.ShipID.Int()), err)
		}
		return err
	}
	if ship.LineID != lineID {
		// The ship table is authoritative for line ownership; feed
		// payloads occasionally carry a sister brand's line id.
		logrus.WithFields(logrus.Fields{
			"cruise_id": cruiseID,
			"ship_id":   ship.ID,
			"payload":   lineID,
			"ship_line": ship.LineID,
		}).Warn("line mismatch, trusting ship record")
		lineID = ship.LineID
	}

	sailing, err := doc.Sailing()
	if err != nil {
		return fmt.Errorf("unusable sailing date %q: %w", doc.SailDate, err)
	}

	cruise := &model.Cruise{
		ID:            cruiseID,
		LineID:        lineID,
		ShipID:        ship.ID,
		Name:          doc.Name,
		VoyageCode:    doc.VoyageCode,
		AlternateCode: doc.AlternateCode,
		SailingDate:   sailing,
		Nights:        doc.Nights.Int(),
		SeaDays:       doc.SeaDays.Int(),
		PortIDs:       doc.PortIDs,
		RegionIDs:     doc.RegionIDs,
		ShowCruise:    doc.ShowCruise,
		IsActive:      true,
	}
	if doc.Nights.Int() > 0 {
		cruise.ReturnDate = ptr.Time(sailing.AddDate(0, 0, doc.Nights.Int()))
	}
	cruise.EmbarkPortID = p.resolvePort(ctx, doc.StartPortID)
	cruise.DisembarkPortID = p.resolvePort(ctx, doc.EndPortID)

	created, err := p.ds.UpsertCruise(ctx, cruise)
	if err != nil {
		return err
	}
	if created {
		result.Created++
	} else {
		result.Updated++
	}

	rows := flattenPricing(cruiseID, doc.Prices)
	inserted, err := p.ds.ReplacePricing(ctx, cruiseID, rows)
	if err != nil {
		return err
	}
	result.PricingRowsInserted += inserted

	changed, err := p.applyCheapest(ctx, cruiseID, doc.Cheapest)
	if err != nil {
		return err
	}
	if changed && !created {
		result.ActuallyUpdated++
	}

	if err := p.cache.Delete(ctx, cache.CheapestPriceKey(cruiseID)); err != nil {
		logrus.WithError(err).WithField("cruise_id", cruiseID).Warn("cheapest cache invalidation failed")
	}
	return nil
}

func (p *IngestionProcessor) resolvePort(ctx context.Context, id *model.FlexibleInt) *int {
	if id == nil || id.Int() == 0 {
		return nil
	}
	if _, err := p.ds.GetPortByID(ctx, id.Int()); err != nil {
		return nil
	}
	return ptr.Int(id.Int())
}

// applyCheapest recomputes the per-cruise aggregate. changed reports a
// material move against the prior aggregate.
func (p *IngestionProcessor) applyCheapest(ctx context.Context, cruiseID int, cheapest model.Cheapest) (bool, error) {
	price, cabinClass, ok := cheapest.Combined.Min()
	if !ok {
		return false, nil
	}

	changed := true
	prior, err := p.ds.GetCheapestPricing(ctx, cruiseID)
	if err != nil && !apierror.Is(err, apierror.ErrNotFound) {
		return false, err
	}
	if prior != nil {
		changed = prior.CheapestPrice.Sub(price).Abs().GreaterThanOrEqual(priceTolerance)
	}

	err = p.ds.UpsertCheapestPricing(ctx, model.CheapestPricing{
		CruiseID:      cruiseID,
		CheapestPrice: price,
		CabinClass:    cabinClass,
		Inside:        cheapest.Combined.Inside,
		Outside:       cheapest.Combined.Outside,
		Balcony:       cheapest.Combined.Balcony,
		Suite:         cheapest.Combined.Suite,
		UpdatedAt:     time.Now(),
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// flattenPricing walks the rate -> cabin -> occupancy tree into rows.
// Leaves without a resolvable base fare are dropped.
func flattenPricing(cruiseID int, tree map[string]map[string]map[string]model.PriceLeaf) []model.PricingRow {
	var rows []model.PricingRow
	rateCodes := sortedKeys(tree)
	for _, rateCode := range rateCodes {
		for _, cabinCode := range sortedKeys(tree[rateCode]) {
			for _, occupancy := range sortedKeys(tree[rateCode][cabinCode]) {
				leaf := tree[rateCode][cabinCode][occupancy]
				base := leaf.BasePrice()
				if !base.Valid {
					continue
				}
				total := leaf.TotalPrice()
				rows = append(rows, model.PricingRow{
					CruiseID:      cruiseID,
					RateCode:      rateCode,
					CabinCode:     cabinCode,
					OccupancyCode: occupancy,
					CabinType:     leaf.CabinType,
					BasePrice:     base.Decimal,
					AdultPrice:    leaf.AdultPrice,
					ChildPrice:    leaf.ChildPrice,
					Taxes:         leaf.Taxes,
					NCF:           leaf.NCF,
					Gratuity:      leaf.Gratuity,
					Fuel:          leaf.Fuel,
					TotalPrice:    total.Decimal,
					IsAvailable:   leaf.Available.Int() > 0,
					Inventory:     leaf.Inventory.Int(),
				})
			}
		}
	}
	return rows
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
