package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceUnmarshalMixedEncodings(t *testing.T) {
	var leaf PriceLeaf
	raw := `{"price": 500, "adultprice": "450.50", "childprice": "", "taxes": null, "ncf": "17.5"}`
	err := json.Unmarshal([]byte(raw), &leaf)
	assert.NoError(t, err)

	assert.True(t, leaf.Price.Valid)
	assert.True(t, leaf.Price.Decimal.Equal(decimal.NewFromInt(500)))
	assert.True(t, leaf.AdultPrice.Valid)
	assert.True(t, leaf.AdultPrice.Decimal.Equal(decimal.RequireFromString("450.50")))
	assert.False(t, leaf.ChildPrice.Valid)
	assert.False(t, leaf.Taxes.Valid)
	assert.True(t, leaf.NCF.Valid)
}

func TestPriceLeafTotalPrice(t *testing.T) {
	var leaf PriceLeaf
	err := json.Unmarshal([]byte(`{"price": 500, "taxes": 50}`), &leaf)
	assert.NoError(t, err)

	total := leaf.TotalPrice()
	assert.True(t, total.Valid)
	assert.True(t, total.Decimal.Equal(decimal.NewFromInt(550)), "expected 550, got %s", total.Decimal)
}

func TestPriceLeafTotalPriceFallsBackToAdult(t *testing.T) {
	var leaf PriceLeaf
	err := json.Unmarshal([]byte(`{"adultprice": "300", "taxes": "25", "ncf": 10}`), &leaf)
	assert.NoError(t, err)

	total := leaf.TotalPrice()
	assert.True(t, total.Valid)
	assert.True(t, total.Decimal.Equal(decimal.NewFromInt(335)))
}

func TestPriceLeafTotalPriceSkipsWithoutBase(t *testing.T) {
	var leaf PriceLeaf
	err := json.Unmarshal([]byte(`{"taxes": 50, "ncf": 20}`), &leaf)
	assert.NoError(t, err)

	assert.False(t, leaf.TotalPrice().Valid)
}

func TestCheapestCombinedMin(t *testing.T) {
	combined := CheapestCombined{
		Inside:  PriceFromFloat(899),
		Outside: PriceFromFloat(1099),
		Balcony: PriceFromFloat(799),
	}

	price, class, ok := combined.Min()
	assert.True(t, ok)
	assert.Equal(t, "balcony", class)
	assert.True(t, price.Equal(decimal.NewFromInt(799)))
}

func TestCheapestCombinedMinAllNull(t *testing.T) {
	_, _, ok := CheapestCombined{}.Min()
	assert.False(t, ok)
}

func TestPricingDocumentUnmarshal(t *testing.T) {
	raw := `{
		"cruiseid": "345235",
		"lineid": 22,
		"shipid": "410",
		"name": "7 Night Western Caribbean",
		"saildate": "2026-03-15",
		"nights": "7",
		"portids": "378,112,90,378",
		"prices": {
			"BESTFARE": {
				"4D": {
					"101": {"price": "1299", "taxes": "150", "cabintype": "balcony"},
					"102": {"price": "", "adultprice": ""}
				}
			}
		},
		"cheapest": {"combined": {"inside": 899, "balcony": "1299"}}
	}`

	var doc PricingDocument
	err := json.Unmarshal([]byte(raw), &doc)
	assert.NoError(t, err)
	assert.Equal(t, 345235, doc.CruiseID.Int())
	assert.Equal(t, 22, doc.LineID.Int())
	assert.Equal(t, 410, doc.ShipID.Int())
	assert.Equal(t, 7, doc.Nights.Int())

	sailing, err := doc.Sailing()
	assert.NoError(t, err)
	assert.Equal(t, 2026, sailing.Year())

	leaf := doc.Prices["BESTFARE"]["4D"]["101"]
	total := leaf.TotalPrice()
	assert.True(t, total.Valid)
	assert.True(t, total.Decimal.Equal(decimal.NewFromInt(1449)))

	// The empty leaf must not resolve a persistable price.
	assert.False(t, doc.Prices["BESTFARE"]["4D"]["102"].TotalPrice().Valid)
}

func TestSanitizedShipName(t *testing.T) {
	ref := CruiseFileReference{ShipName: "Wonder of the Seas"}
	assert.Equal(t, "wonderoftheseas", ref.SanitizedShipName())

	ref = CruiseFileReference{ShipName: "MSC Virtuosa-2"}
	assert.Equal(t, "mscvirtuosa2", ref.SanitizedShipName())
}

func TestIngestionResultMerge(t *testing.T) {
	a := IngestionResult{Created: 1, Updated: 2, ActuallyUpdated: 1, Failed: 1}
	b := IngestionResult{Created: 2, Updated: 3, ActuallyUpdated: 2, ConstraintViolations: 1,
		Errors: []CruiseError{{CruiseID: 9, Type: "database_error"}}}

	a.Merge(b)
	assert.Equal(t, 3, a.Created)
	assert.Equal(t, 5, a.Updated)
	assert.Equal(t, 3, a.ActuallyUpdated)
	assert.Equal(t, 1, a.Failed)
	assert.Equal(t, 1, a.ConstraintViolations)
	assert.Len(t, a.Errors, 1)
}

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("run")
	assert.Contains(t, id, "run_")
}
