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
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CruiseLine is an operator/brand owning ships and cruises. Traveltek
// addresses a line by an external id that does not always match ours;
// the mapping lives in config, consulted once per orchestration.
type CruiseLine struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Ship struct {
	ID        int       `json:"id"`
	LineID    int       `json:"line_id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Port struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	IsActive bool   `json:"is_active"`
}

// Cruise is one scheduled sailing. Identity fields (ID, LineID) are never
// rewritten by ingestion; the rest track the latest supplier payload.
type Cruise struct {
	ID             int        `json:"id"`
	LineID         int        `json:"line_id"`
	ShipID         int        `json:"ship_id"`
	Name           string     `json:"name"`
	VoyageCode     string     `json:"voyage_code"`
	AlternateCode  string     `json:"alternate_code"`
	SailingDate    time.Time  `json:"sailing_date"`
	ReturnDate     *time.Time `json:"return_date,omitempty"`
	Nights         int        `json:"nights"`
	SeaDays        int        `json:"sea_days"`
	EmbarkPortID   *int       `json:"embark_port_id,omitempty"`
	DisembarkPortID *int      `json:"disembark_port_id,omitempty"`
	PortIDs        string     `json:"port_ids"`
	RegionIDs      string     `json:"region_ids"`
	ShowCruise     bool       `json:"show_cruise"`
	IsActive       bool       `json:"is_active"`
	CheapestPrice  *decimal.Decimal `json:"cheapest_price,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CruiseFileReference identifies one remote pricing file on the supplier
// FTP. It is built by the orchestrator from the candidate cruise set and
// consumed by the bulk downloader; it is never persisted.
type CruiseFileReference struct {
	CruiseID      int
	LineID        int
	ShipID        int
	ShipName      string
	AlternateCode string
	SailingDate   time.Time
	ResolvedPath  string
}

var shipNameSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizedShipName lowercases the ship name and strips everything outside
// [a-z0-9], matching how the supplier derives its fallback directory names.
func (r CruiseFileReference) SanitizedShipName() string {
	return shipNameSanitizer.ReplaceAllString(strings.ToLower(r.ShipName), "")
}
