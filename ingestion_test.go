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
	"encoding/json"
	"testing"
	"time"

	"github.com/heyitswin/zipsea-sub001/internal/apierror"
	"github.com/heyitswin/zipsea-sub001/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory IDataSource for processor tests.
type memStore struct {
	lines    map[int]*model.CruiseLine
	ships    map[int]*model.Ship
	ports    map[int]*model.Port
	cruises  map[int]*model.Cruise
	pricing  map[int][]model.PricingRow
	cheapest map[int]*model.CheapestPricing
}

func newMemStore() *memStore {
	return &memStore{
		lines:    map[int]*model.CruiseLine{22: {ID: 22, Name: "Royal Caribbean", IsActive: true}},
		ships:    map[int]*model.Ship{4439: {ID: 4439, LineID: 22, Name: "Wonder of the Seas", IsActive: true}},
		ports:    map[int]*model.Port{378: {ID: 378, Name: "Miami"}},
		cruises:  make(map[int]*model.Cruise),
		pricing:  make(map[int][]model.PricingRow),
		cheapest: make(map[int]*model.CheapestPricing),
	}
}

func (m *memStore) GetActiveCruisesByLine(_ context.Context, lineID int, horizon time.Time) ([]model.Cruise, error) {
	var out []model.Cruise
	for _, c := range m.cruises {
		if c.LineID == lineID && c.IsActive && c.SailingDate.After(time.Now()) && c.SailingDate.Before(horizon) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) GetCruiseByID(_ context.Context, id int) (*model.Cruise, error) {
	if c, ok := m.cruises[id]; ok {
		return c, nil
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "cruise not found", nil)
}

func (m *memStore) GetShipByID(_ context.Context, id int) (*model.Ship, error) {
	if s, ok := m.ships[id]; ok {
		return s, nil
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "ship not found", nil)
}

func (m *memStore) GetPortByID(_ context.Context, id int) (*model.Port, error) {
	if p, ok := m.ports[id]; ok {
		return p, nil
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "port not found", nil)
}

func (m *memStore) GetCruiseLineByID(_ context.Context, id int) (*model.CruiseLine, error) {
	if l, ok := m.lines[id]; ok {
		return l, nil
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "cruise line not found", nil)
}

func (m *memStore) UpsertCruise(_ context.Context, cruise *model.Cruise) (bool, error) {
	_, exists := m.cruises[cruise.ID]
	m.cruises[cruise.ID] = cruise
	return !exists, nil
}

func (m *memStore) ReplacePricing(_ context.Context, cruiseID int, rows []model.PricingRow) (int, error) {
	m.pricing[cruiseID] = rows
	return len(rows), nil
}

func (m *memStore) GetCheapestPricing(_ context.Context, cruiseID int) (*model.CheapestPricing, error) {
	if c, ok := m.cheapest[cruiseID]; ok {
		return c, nil
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "no cheapest pricing", nil)
}

func (m *memStore) UpsertCheapestPricing(_ context.Context, pricing model.CheapestPricing) error {
	m.cheapest[pricing.CruiseID] = &pricing
	return nil
}

// memCache records deletes and never errors.
type memCache struct{ deleted []string }

func (c *memCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (c *memCache) Get(context.Context, string, interface{}) error                { return nil }
func (c *memCache) Delete(_ context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	return nil
}

func testDoc(t *testing.T, raw string) *model.PricingDocument {
	t.Helper()
	var doc model.PricingDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

const fullDocJSON = `{
	"cruiseid": 345235,
	"lineid": 22,
	"shipid": 4439,
	"name": "7 Night Western Caribbean",
	"voyagecode": "WN07A26",
	"codetocruiseid": "987001",
	"saildate": "2026-03-15",
	"nights": 7,
	"seadays": 3,
	"startportid": "378",
	"endportid": 378,
	"showcruise": true,
	"prices": {
		"BESTFARE": {
			"4D": {
				"101": {"price": 500, "taxes": 50, "cabintype": "inside", "available": 5},
				"102": {"adultprice": "620.50", "taxes": 50, "cabintype": "inside"}
			},
			"7B": {
				"101": {"price": "", "taxes": 40, "cabintype": "balcony"}
			}
		}
	},
	"cheapest": {
		"combined": {"inside": 550, "outside": null, "balcony": 890.10, "suite": ""}
	}
}`

func TestApplyCreatesCruiseAndPricing(t *testing.T) {
	store := newMemStore()
	cch := &memCache{}
	p := NewIngestionProcessor(store, cch)

	docs := map[int]*model.PricingDocument{345235: testDoc(t, fullDocJSON)}
	result := p.Apply(context.Background(), 22, docs)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Failed)

	cruise := store.cruises[345235]
	require.NotNil(t, cruise)
	assert.Equal(t, 22, cruise.LineID)
	assert.Equal(t, "7 Night Western Caribbean", cruise.Name)
	assert.Equal(t, "987001", cruise.AlternateCode)
	require.NotNil(t, cruise.EmbarkPortID)
	assert.Equal(t, 378, *cruise.EmbarkPortID)
	require.NotNil(t, cruise.ReturnDate)
	assert.Equal(t, cruise.SailingDate.AddDate(0, 0, 7), *cruise.ReturnDate)

	// The empty-price balcony leaf is dropped, the other two persist.
	rows := store.pricing[345235]
	require.Len(t, rows, 2)
	assert.Equal(t, 2, result.PricingRowsInserted)
	assert.True(t, rows[0].BasePrice.Equal(decimal.NewFromInt(500)))
	assert.True(t, rows[0].TotalPrice.Equal(decimal.NewFromInt(550)))
	assert.True(t, rows[1].BasePrice.Equal(decimal.RequireFromString("620.50")))

	cheapest := store.cheapest[345235]
	require.NotNil(t, cheapest)
	assert.True(t, cheapest.CheapestPrice.Equal(decimal.NewFromInt(550)))
	assert.Equal(t, "inside", cheapest.CabinClass)

	assert.Contains(t, cch.deleted, "cruise:cheapest:345235")
}

func TestApplySecondRunIsNotActuallyUpdated(t *testing.T) {
	store := newMemStore()
	p := NewIngestionProcessor(store, &memCache{})
	docs := map[int]*model.PricingDocument{345235: testDoc(t, fullDocJSON)}

	first := p.Apply(context.Background(), 22, docs)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, first.ActuallyUpdated)

	second := p.Apply(context.Background(), 22, docs)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 0, second.ActuallyUpdated)
}

func TestApplyMaterialPriceChangeCounts(t *testing.T) {
	store := newMemStore()
	p := NewIngestionProcessor(store, &memCache{})

	p.Apply(context.Background(), 22, map[int]*model.PricingDocument{345235: testDoc(t, fullDocJSON)})

	cheaper := testDoc(t, fullDocJSON)
	cheaper.Cheapest.Combined.Inside = model.PriceFromFloat(499)
	result := p.Apply(context.Background(), 22, map[int]*model.PricingDocument{345235: cheaper})

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.ActuallyUpdated)
	assert.True(t, store.cheapest[345235].CheapestPrice.Equal(decimal.NewFromInt(499)))
}

func TestApplySubCentMoveIsNotMaterial(t *testing.T) {
	store := newMemStore()
	p := NewIngestionProcessor(store, &memCache{})

	p.Apply(context.Background(), 22, map[int]*model.PricingDocument{345235: testDoc(t, fullDocJSON)})

	wiggle := testDoc(t, fullDocJSON)
	wiggle.Cheapest.Combined.Inside = model.PriceFromFloat(550.004)
	result := p.Apply(context.Background(), 22, map[int]*model.PricingDocument{345235: wiggle})

	assert.Equal(t, 0, result.ActuallyUpdated)
}

func TestApplyUnknownShipIsConstraintViolation(t *testing.T) {
	store := newMemStore()
	p := NewIngestionProcessor(store, &memCache{})

	doc := testDoc(t, fullDocJSON)
	doc.ShipID = 9999
	result := p.Apply(context.Background(), 22, map[int]*model.PricingDocument{345235: doc})

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.ConstraintViolations)
	assert.Empty(t, store.cruises)
}

func TestApplyUnknownLineFailsWholeBatch(t *testing.T) {
	store := newMemStore()
	p := NewIngestionProcessor(store, &memCache{})

	docs := map[int]*model.PricingDocument{
		345235: testDoc(t, fullDocJSON),
		345236: testDoc(t, fullDocJSON),
	}
	result := p.Apply(context.Background(), 99, docs)

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, result.ConstraintViolations)
	assert.Empty(t, store.cruises)
}

func TestApplyTrustsShipLineOnMismatch(t *testing.T) {
	store := newMemStore()
	store.lines[3] = &model.CruiseLine{ID: 3, Name: "Celebrity"}
	store.ships[4439].LineID = 3
	p := NewIngestionProcessor(store, &memCache{})

	// Payload claims line 22, ship record says line 3.
	result := p.Apply(context.Background(), 22, map[int]*model.PricingDocument{345235: testDoc(t, fullDocJSON)})

	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, store.cruises[345235].LineID)
}

func TestApplyMissingPortIsNiledOut(t *testing.T) {
	store := newMemStore()
	delete(store.ports, 378)
	p := NewIngestionProcessor(store, &memCache{})

	result := p.Apply(context.Background(), 22, map[int]*model.PricingDocument{345235: testDoc(t, fullDocJSON)})

	assert.Equal(t, 0, result.Failed)
	assert.Nil(t, store.cruises[345235].EmbarkPortID)
	assert.Nil(t, store.cruises[345235].DisembarkPortID)
}

func TestApplyBadSailingDateFailsOnlyThatCruise(t *testing.T) {
	store := newMemStore()
	p := NewIngestionProcessor(store, &memCache{})

	bad := testDoc(t, fullDocJSON)
	bad.SailDate = "soon"
	bad.StartDate = ""
	docs := map[int]*model.PricingDocument{
		345235: testDoc(t, fullDocJSON),
		345236: bad,
	}
	result := p.Apply(context.Background(), 22, docs)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.ConstraintViolations)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 345236, result.Errors[0].CruiseID)
}
