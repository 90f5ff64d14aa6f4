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

package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Price is a nullable money value tolerant of the supplier feed's mixed
// encodings: numbers, numeric strings, empty strings and nulls all appear
// for the same field across files.
type Price struct {
	decimal.NullDecimal
}

func NewPrice(d decimal.Decimal) Price {
	return Price{decimal.NewNullDecimal(d)}
}

func PriceFromFloat(f float64) Price {
	return NewPrice(decimal.NewFromFloat(f))
}

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		p.Valid = false
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			p.Valid = false
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			// Unparseable price strings are treated as absent, not fatal.
			p.Valid = false
			return nil
		}
		p.Decimal = d
		p.Valid = true
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return err
	}
	p.Decimal = d
	p.Valid = true
	return nil
}

// Or returns this price if set, otherwise the fallback.
func (p Price) Or(fallback Price) Price {
	if p.Valid {
		return p
	}
	return fallback
}

// AddTo adds this price to total when set.
func (p Price) AddTo(total decimal.Decimal) decimal.Decimal {
	if !p.Valid {
		return total
	}
	return total.Add(p.Decimal)
}

// FlexibleInt decodes supplier fields that arrive as either a JSON number
// or a numeric string.
type FlexibleInt int

func (fi *FlexibleInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*fi = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*fi = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*fi = FlexibleInt(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*fi = FlexibleInt(int(f))
	return nil
}

func (fi FlexibleInt) Int() int { return int(fi) }

// PriceLeaf is one rate/cabin/occupancy cell of the supplier pricing tree.
type PriceLeaf struct {
	Price       Price       `json:"price"`
	AdultPrice  Price       `json:"adultprice"`
	ChildPrice  Price       `json:"childprice"`
	InfantPrice Price       `json:"infantprice"`
	Taxes       Price       `json:"taxes"`
	NCF         Price       `json:"ncf"`
	Gratuity    Price       `json:"gratuity"`
	Fuel        Price       `json:"fuel"`
	NonComm     Price       `json:"noncomm"`
	CabinType   string      `json:"cabintype"`
	CabinCode   string      `json:"cabincode"`
	Available   FlexibleInt `json:"available"`
	Inventory   FlexibleInt `json:"inventory"`
}

// BasePrice resolves the leaf's base fare: the per-cabin price when present,
// the adult fare otherwise. Leaves with neither are not persistable.
func (l PriceLeaf) BasePrice() Price {
	return l.Price.Or(l.AdultPrice)
}

// TotalPrice composes base + taxes + fee components. Returns an invalid
// Price when no base fare resolves; such leaves are skipped, not fatal.
func (l PriceLeaf) TotalPrice() Price {
	base := l.BasePrice()
	if !base.Valid {
		return Price{}
	}
	total := base.Decimal
	total = l.Taxes.AddTo(total)
	total = l.NCF.AddTo(total)
	total = l.Gratuity.AddTo(total)
	total = l.Fuel.AddTo(total)
	return NewPrice(total)
}

// CheapestCombined is the supplier's pre-aggregated "combined cheapest"
// section: one price per cabin class.
type CheapestCombined struct {
	Inside  Price `json:"inside"`
	Outside Price `json:"outside"`
	Balcony Price `json:"balcony"`
	Suite   Price `json:"suite"`
}

type Cheapest struct {
	Combined CheapestCombined `json:"combined"`
}

// Min returns the minimum non-null combined price and its cabin class.
// ok is false when all four classes are null.
func (c CheapestCombined) Min() (price decimal.Decimal, cabinClass string, ok bool) {
	classes := []struct {
		name  string
		price Price
	}{
		{"inside", c.Inside},
		{"outside", c.Outside},
		{"balcony", c.Balcony},
		{"suite", c.Suite},
	}
	for _, cl := range classes {
		if !cl.price.Valid {
			continue
		}
		if !ok || cl.price.Decimal.LessThan(price) {
			price = cl.price.Decimal
			cabinClass = cl.name
			ok = true
		}
	}
	return price, cabinClass, ok
}

// PricingDocument is the parsed per-cruise pricing file: cruise attributes
// plus a rate-code -> cabin-code -> occupancy-code price tree.
type PricingDocument struct {
	CruiseID      FlexibleInt  `json:"cruiseid"`
	LineID        FlexibleInt  `json:"lineid"`
	ShipID        FlexibleInt  `json:"shipid"`
	Name          string       `json:"name"`
	VoyageCode    string       `json:"voyagecode"`
	AlternateCode string       `json:"codetocruiseid"`
	SailDate      string       `json:"saildate"`
	StartDate     string       `json:"startdate"`
	Nights        FlexibleInt  `json:"nights"`
	SeaDays       FlexibleInt  `json:"seadays"`
	StartPortID   *FlexibleInt `json:"startportid,omitempty"`
	EndPortID     *FlexibleInt `json:"endportid,omitempty"`
	PortIDs       string       `json:"portids"`
	RegionIDs     string       `json:"regionids"`
	ShowCruise    bool         `json:"showcruise"`

	Prices   map[string]map[string]map[string]PriceLeaf `json:"prices"`
	Cheapest Cheapest                                   `json:"cheapest"`
}

// Sailing parses the document's sailing date, trying the two formats the
// feed is known to emit.
func (d PricingDocument) Sailing() (time.Time, error) {
	raw := d.SailDate
	if raw == "" {
		raw = d.StartDate
	}
	t, err := time.Parse("2006-01-02", raw)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", raw)
}

// CheapestPricing is the denormalized per-cruise aggregate row used for
// fast listing reads.
type CheapestPricing struct {
	CruiseID      int             `json:"cruise_id"`
	CheapestPrice decimal.Decimal `json:"cheapest_price"`
	CabinClass    string          `json:"cabin_class"`
	Inside        Price           `json:"inside"`
	Outside       Price           `json:"outside"`
	Balcony       Price           `json:"balcony"`
	Suite         Price           `json:"suite"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PricingRow is one flattened rate/cabin/occupancy row as persisted.
type PricingRow struct {
	CruiseID      int
	RateCode      string
	CabinCode     string
	OccupancyCode string
	CabinType     string
	BasePrice     decimal.Decimal
	AdultPrice    Price
	ChildPrice    Price
	Taxes         Price
	NCF           Price
	Gratuity      Price
	Fuel          Price
	TotalPrice    decimal.Decimal
	IsAvailable   bool
	Inventory     int
}
